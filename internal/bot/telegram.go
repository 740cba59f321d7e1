package bot

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"farewatch/internal/advisor"
	"farewatch/internal/domain"
	"farewatch/internal/service"

	tele "gopkg.in/telebot.v3"
)

// StartTelegramBot wires the read-only Telegram interface. Routes are keyed
// by the sender's Telegram ID, so each user only sees what they track.
func StartTelegramBot(tracker *service.TrackerService, fareAdvisor *advisor.AdvisorService) {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		log.Println("TELEGRAM_BOT_TOKEN not set, skipping Telegram bot startup")
		return
	}
	pref := tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}
	b, err := tele.NewBot(pref)
	if err != nil {
		log.Fatalf("failed to create Telegram bot: %v", err)
	}

	b.Handle("/ping", func(c tele.Context) error {
		return c.Send("pong")
	})

	b.Handle("/routes", func(c tele.Context) error {
		userID := strconv.FormatInt(c.Sender().ID, 10)
		routes, err := tracker.ListRoutes(context.Background(), userID)
		if err != nil {
			return c.Send(fmt.Sprintf("Error listing routes: %v", err))
		}
		if len(routes) == 0 {
			return c.Send("You are not tracking any routes yet.")
		}
		var sb strings.Builder
		sb.WriteString("Tracked routes:\n")
		for _, r := range routes {
			status := "active"
			if !r.IsActive {
				status = "paused"
			}
			sb.WriteString(fmt.Sprintf("%s-%s %s (±%dd, alert at -%.1f%%, %s)\n",
				r.Origin, r.Destination, r.DepartureDate.Format("2006-01-02"),
				r.FlexibilityDays, r.ThresholdPercent, status))
		}
		return c.Send(sb.String())
	})

	b.Handle("/quote", func(c tele.Context) error {
		args := c.Args()
		if len(args) == 0 {
			return c.Send("Usage: /quote MAD-JFK")
		}
		userID := strconv.FormatInt(c.Sender().ID, 10)
		route, err := findRoute(tracker, userID, args[0])
		if err != nil {
			return c.Send(err.Error())
		}
		quote, err := tracker.CurrentQuote(context.Background(), route.ID)
		if err != nil {
			return c.Send(fmt.Sprintf("Error fetching quote: %v", err))
		}
		if quote == nil {
			return c.Send(fmt.Sprintf("No offers currently available for %s-%s.", route.Origin, route.Destination))
		}
		msg := fmt.Sprintf("%s-%s\nBest price: %.2f %s\nCarrier: %s, stops: %d",
			route.Origin, route.Destination, quote.Price, quote.Currency, quote.Carrier, quote.Stops)
		return c.Send(msg)
	})

	b.Handle("/alerts", func(c tele.Context) error {
		userID := strconv.FormatInt(c.Sender().ID, 10)
		routes, err := tracker.ListRoutes(context.Background(), userID)
		if err != nil {
			return c.Send(fmt.Sprintf("Error listing routes: %v", err))
		}
		var sb strings.Builder
		for _, r := range routes {
			alerts, err := tracker.Alerts(context.Background(), r.ID)
			if err != nil {
				continue
			}
			for _, a := range alerts {
				sb.WriteString(fmt.Sprintf("%s-%s %s: %.2f -> %.2f (%.1f%%)\n",
					r.Origin, r.Destination, a.AlertedAt.Format("2006-01-02"),
					a.OldPrice, a.NewPrice, a.PercentChange))
			}
		}
		if sb.Len() == 0 {
			return c.Send("No price alerts yet.")
		}
		return c.Send("Price alerts:\n" + sb.String())
	})

	b.Handle("/ask", func(c tele.Context) error {
		if fareAdvisor == nil {
			return c.Send("The fare advisor is not configured.")
		}
		question := strings.TrimSpace(strings.TrimPrefix(c.Text(), "/ask"))
		if question == "" {
			return c.Send("Usage: /ask should I book MAD-JFK now?")
		}
		userID := strconv.FormatInt(c.Sender().ID, 10)
		reply, err := fareAdvisor.Ask(context.Background(), c.Chat().ID, userID, question)
		if err != nil {
			return c.Send(fmt.Sprintf("Advisor error: %v", err))
		}
		return c.Send(reply)
	})

	log.Println("Telegram bot started")
	go b.Start()
}

func findRoute(tracker *service.TrackerService, userID, pair string) (*domain.TrackedRoute, error) {
	parts := strings.Split(strings.ToUpper(pair), "-")
	if len(parts) != 2 {
		return nil, fmt.Errorf("Expected a pair like MAD-JFK, got %q.", pair)
	}
	routes, err := tracker.ListRoutes(context.Background(), userID)
	if err != nil {
		return nil, fmt.Errorf("Error listing routes: %v", err)
	}
	for _, r := range routes {
		if r.Origin == parts[0] && r.Destination == parts[1] {
			return r, nil
		}
	}
	return nil, fmt.Errorf("You are not tracking %s-%s.", parts[0], parts[1])
}

package locations

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"trip-dispatch-system/models"
)

// Report is the inbound location message published by driver apps.
type Report struct {
	DriverID  int64   `json:"driver_id"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Town      string  `json:"town"`
	Status    string  `json:"status,omitempty"`
	Timestamp string  `json:"timestamp"`
}

// Consumer drains driver location reports from a fanout exchange into
// the store. It declares its own exclusive auto-delete queue so every
// instance sees the full feed.
type Consumer struct {
	URL      string
	Exchange string
	Store    *Store
}

func NewConsumer(url, exchange string, store *Store) *Consumer {
	return &Consumer{URL: url, Exchange: exchange, Store: store}
}

func (c *Consumer) Run(ctx context.Context) error {
	conn, err := amqp.Dial(c.URL)
	if err != nil {
		return fmt.Errorf("amqp dial: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("amqp channel: %w", err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(c.Exchange, "fanout", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	queue, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(queue.Name, "", c.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}

	msgs, err := ch.Consume(queue.Name, "", false, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	log.Printf("Location consumer listening on exchange %s (queue %s)", c.Exchange, queue.Name)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("amqp message channel closed")
			}
			if err := c.handle(ctx, msg.Body); err != nil {
				log.Printf("location report dropped: %v", err)
				_ = msg.Nack(false, false)
				continue
			}
			_ = msg.Ack(false)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, body []byte) error {
	var report Report
	if err := json.Unmarshal(body, &report); err != nil {
		return fmt.Errorf("parse report: %w", err)
	}
	loc, err := FromReport(report)
	if err != nil {
		return err
	}
	return c.Store.Upsert(ctx, loc)
}

// FromReport normalizes a feed message into the canonical location
// record. Missing status means the driver is online; a missing or
// unparsable timestamp is taken as "now".
func FromReport(r Report) (models.DriverLocation, error) {
	if r.DriverID == 0 {
		return models.DriverLocation{}, fmt.Errorf("driver_id is required")
	}
	status := models.DriverStatus(r.Status)
	switch status {
	case models.DriverOnline, models.DriverOnTrip, models.DriverOffline:
	case "":
		status = models.DriverOnline
	default:
		return models.DriverLocation{}, fmt.Errorf("unknown driver status %q", r.Status)
	}
	reportedAt := time.Now().UTC()
	if r.Timestamp != "" {
		if ts, err := time.Parse(time.RFC3339, r.Timestamp); err == nil {
			reportedAt = ts
		}
	}
	return models.DriverLocation{
		DriverID:   r.DriverID,
		Latitude:   r.Latitude,
		Longitude:  r.Longitude,
		Town:       r.Town,
		Status:     status,
		ReportedAt: reportedAt,
	}, nil
}

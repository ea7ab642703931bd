package pg_listener

import (
	"context"
	"encoding/json"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// NotificationHandler receives decoded notifications published by database triggers.
type NotificationHandler interface {
	HandleNotification(table string, data map[string]interface{}) error
}

type ListenerConfig struct {
	PgConnStr string
	Channel   string
	// Interval is how long to wait on a silent connection before pinging it.
	Interval time.Duration
	Timeout  time.Duration
}

type DBListener struct {
	config  ListenerConfig
	handler NotificationHandler
}

// NotificationPayload is the JSON body sent with pg_notify by the insert triggers.
type NotificationPayload struct {
	Table string                 `json:"table"`
	Data  map[string]interface{} `json:"data"`
}

func NewDBListener(config ListenerConfig, handler NotificationHandler) *DBListener {
	if config.Interval <= 0 {
		config.Interval = 90 * time.Second
	}
	if config.Timeout <= 0 {
		config.Timeout = time.Minute
	}
	return &DBListener{
		config:  config,
		handler: handler,
	}
}

// Start listens on the configured channel until ctx is done.
func (d *DBListener) Start(ctx context.Context) error {
	listener := pq.NewListener(d.config.PgConnStr, 10*time.Second, d.config.Timeout, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			logrus.WithError(err).Warn("postgres listener event")
		}
	})
	defer listener.Close()

	if err := listener.Listen(d.config.Channel); err != nil {
		return err
	}
	logrus.Infof("listening for postgres notifications on channel %q", d.config.Channel)

	for {
		select {
		case <-ctx.Done():
			return nil
		case notification := <-listener.Notify:
			// nil after a reconnect; anything sent while disconnected is picked up by the scheduled batch
			if notification != nil {
				d.handleNotification(notification)
			}
		case <-time.After(d.config.Interval):
			if err := listener.Ping(); err != nil {
				logrus.WithError(err).Warn("postgres listener ping failed")
			}
		}
	}
}

func (d *DBListener) handleNotification(notification *pq.Notification) {
	var payload NotificationPayload
	if err := json.Unmarshal([]byte(notification.Extra), &payload); err != nil {
		logrus.WithError(err).Errorf("invalid notification payload on %s", notification.Channel)
		return
	}

	if err := d.handler.HandleNotification(payload.Table, payload.Data); err != nil {
		logrus.WithError(err).Errorf("error handling %s notification", payload.Table)
	}
}

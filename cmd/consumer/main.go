package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"

	"github.com/parthgupta9/ride-pooling/internal/dispatch"
	"github.com/parthgupta9/ride-pooling/internal/ingest"
)

var (
	msgsConsumed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_pool_events_consumed_total",
		Help: "Total pool assignment events consumed",
	})
	msgsInvalid = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_pool_events_invalid_total",
		Help: "Total invalid events received",
	})
	pushesSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_pushes_sent_total",
		Help: "Total push notifications delivered",
	})
	pushErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_push_errors_total",
		Help: "Total push notification failures after retries",
	})
)

func init() {
	prometheus.MustRegister(msgsConsumed, msgsInvalid, pushesSent, pushErrors)
}

func main() {
	// allow some flags for local runs
	var metricsAddr string
	flag.StringVar(&metricsAddr, "metrics-addr", ":2112", "address to serve prometheus metrics on")
	flag.Parse()

	brokersEnv := os.Getenv("KAFKA_BROKERS")
	if brokersEnv == "" {
		brokersEnv = os.Getenv("KAFKA_BROKER")
	}
	brokers := []string{}
	if brokersEnv != "" {
		for _, b := range strings.Split(brokersEnv, ",") {
			if s := strings.TrimSpace(b); s != "" {
				brokers = append(brokers, s)
			}
		}
	} else {
		brokers = []string{"localhost:9092"}
	}

	topic := os.Getenv("KAFKA_TOPIC")
	if topic == "" {
		topic = "pool-events"
	}
	group := os.Getenv("KAFKA_GROUP")
	if group == "" {
		group = "ride-pooling-notifier"
	}

	fcmEndpoint := os.Getenv("FCM_ENDPOINT")
	if fcmEndpoint == "" {
		fcmEndpoint = "https://fcm.googleapis.com/v1/projects/ride-pooling/messages:send"
	}
	sender := dispatch.NewFCMNotifier(fcmEndpoint, os.Getenv("FCM_KEY"))

	// start metrics and health server
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) })
		log.Printf("metrics/health listening on %s", metricsAddr)
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			log.Printf("metrics server stopped: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r := kafka.NewReader(kafka.ReaderConfig{Brokers: brokers, Topic: topic, GroupID: group, MinBytes: 10e3, MaxBytes: 10e6})
	defer func() {
		_ = r.Close()
	}()

	log.Printf("consumer listening topic=%s brokers=%v group=%s", topic, brokers, group)

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Println("shutting down consumer")
				return
			}
			log.Printf("kafka read error: %v; backing off %s", err, backoff)
			time.Sleep(backoff)
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		// reset backoff on success
		backoff = time.Second

		msgsConsumed.Inc()

		var ev ingest.PoolEvent
		if err := json.Unmarshal(m.Value, &ev); err != nil {
			msgsInvalid.Inc()
			log.Printf("invalid event: %v", err)
			continue
		}

		fanOut(ctx, sender, ev)
	}
}

// fanOut pushes one notification per rider in the pool, each with its own
// retry budget. A rider that still fails is counted and skipped; delivery is
// best-effort by contract.
func fanOut(ctx context.Context, sender dispatch.Notifier, ev ingest.PoolEvent) {
	for _, riderID := range ev.RiderIDs {
		if err := notifyWithRetry(ctx, sender, riderID, ev, 3, 200*time.Millisecond); err != nil {
			pushErrors.Inc()
			log.Printf("push failed for rider=%s pool=%s: %v", riderID, ev.PoolID, err)
			continue
		}
		pushesSent.Inc()
	}
}

// notifyWithRetry delivers one push with retry/backoff.
func notifyWithRetry(ctx context.Context, sender dispatch.Notifier, riderID string, payload any, attempts int, delay time.Duration) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = sender.Notify(ctx, riderID, payload); err == nil {
			return nil
		}
		if i < attempts-1 {
			time.Sleep(delay)
			delay *= 2
		}
	}
	return err
}

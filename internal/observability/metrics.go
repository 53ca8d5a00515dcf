package observability

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	DatagramsRecv = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gps_datagrams_received_total",
		Help: "Total de datagramas UDP recibidos",
	})
	DecodeErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gps_decode_errors_total",
		Help: "Datagramas descartados por error de decodificación",
	}, []string{"kind"})
	MessagesAccepted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gps_messages_accepted_total",
		Help: "Mensajes aceptados (secuencia fresca) por tipo",
	}, []string{"type"})
	MessagesLost = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gps_messages_lost_total",
		Help: "Secuencias saltadas detectadas",
	})
	MessagesDuplicated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gps_messages_duplicated_total",
		Help: "Mensajes duplicados o fuera de orden",
	})
	ProtocolErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gps_protocol_errors_total",
		Help: "Mensajes rechazados tras decodificar (ventana de tiempo, tipo inesperado)",
	}, []string{"reason"})
	AcksSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gps_acks_sent_total",
		Help: "ACKs enviados a dispositivos",
	})
	DevicesKnown = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gps_devices_known",
		Help: "Dispositivos registrados desde el arranque",
	})
	SinkErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gps_sink_errors_total",
		Help: "Errores al publicar un registro hacia un destino",
	}, []string{"sink"})
	ProcessLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gps_process_latency_seconds",
		Help:    "Latencia de procesamiento por datagrama",
		Buckets: prometheus.DefBuckets,
	})

	ClientReports = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gps_client_reports_total",
		Help: "Envíos del simulador por tipo y resultado",
	}, []string{"type", "outcome"})
)

func ObserveProcessLatency(start time.Time) {
	ProcessLatency.Observe(time.Since(start).Seconds())
}

// NewMux expone /metrics y /healthz; el llamador puede agregar rutas.
func NewMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// StartMetricsServer bloquea hasta que ctx se cancela o el listener falla.
func StartMetricsServer(ctx context.Context, port string, mux *http.ServeMux) error {
	if mux == nil {
		mux = NewMux()
	}
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

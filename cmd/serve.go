package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/edusignal/exam-intel/internal/model"
	"github.com/edusignal/exam-intel/internal/monitoring"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API for reports and pipeline runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.Recoverer)
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
		}))

		r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		// One pipeline run at a time; a second request while one is in
		// flight gets 409 rather than queueing.
		var runMu sync.Mutex
		running := false
		r.Post("/pipeline/run", func(w http.ResponseWriter, req *http.Request) {
			runMu.Lock()
			if running {
				runMu.Unlock()
				writeJSON(w, http.StatusConflict, map[string]string{"error": "a run is already in progress"})
				return
			}
			running = true
			runMu.Unlock()

			go func() {
				defer func() {
					runMu.Lock()
					running = false
					runMu.Unlock()
				}()
				report, err := env.Pipeline.Run(ctx)
				if err != nil {
					zap.L().Error("api-triggered run failed", zap.Error(err))
					return
				}
				zap.L().Info("api-triggered run complete",
					zap.String("run_id", report.RunID),
					zap.Int("consolidated", report.ConsolidatedCount),
				)
			}()

			writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
		})

		r.Get("/students/{studentID}/summary", func(w http.ResponseWriter, req *http.Request) {
			studentID := chi.URLParam(req, "studentID")
			c, err := env.Store.GetConsolidatedLatest(req.Context(), studentID)
			if err != nil {
				zap.L().Error("get consolidation", zap.String("student_id", studentID), zap.Error(err))
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "store error"})
				return
			}
			if c == nil {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": "no consolidation for student"})
				return
			}

			detail, err := studentDetail(req.Context(), env, studentID)
			if err != nil {
				zap.L().Error("load student detail", zap.String("student_id", studentID), zap.Error(err))
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "store error"})
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"consolidation": c,
				"subjects":      detail,
			})
		})

		r.Get("/students/{studentID}/history", func(w http.ResponseWriter, req *http.Request) {
			studentID := chi.URLParam(req, "studentID")
			history, err := env.Store.ListConsolidatedHistory(req.Context(), studentID)
			if err != nil {
				zap.L().Error("list history", zap.String("student_id", studentID), zap.Error(err))
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "store error"})
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"student_id": studentID,
				"history":    history,
			})
		})

		r.Get("/rules", func(w http.ResponseWriter, req *http.Request) {
			writeJSON(w, http.StatusOK, describeRules(env))
		})

		collector := monitoring.NewCollector(env.Store)
		r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
			snap, err := collector.Collect(req.Context(), cfg.Monitoring.LookbackRuns)
			if err != nil {
				zap.L().Error("collect metrics", zap.Error(err))
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "store error"})
				return
			}
			writeJSON(w, http.StatusOK, snap)
		})

		if cfg.Monitoring.Enabled {
			checker := monitoring.NewChecker(collector, monitoring.NewAlerter(cfg.Monitoring), cfg.Monitoring)
			go checker.Run(ctx)
		}

		r.Get("/runs", func(w http.ResponseWriter, req *http.Request) {
			reports, err := env.Store.ListRunReports(req.Context(), 0)
			if err != nil {
				zap.L().Error("list runs", zap.Error(err))
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "store error"})
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"runs": reports})
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: r,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// subjectDetail pairs one subject's analytics with its insight and narrative.
type subjectDetail struct {
	Subject   string                  `json:"subject"`
	Metric    *model.SubjectMetric    `json:"analytics,omitempty"`
	Insight   *model.SubjectInsight   `json:"insight,omitempty"`
	Narrative *model.SubjectNarrative `json:"narrative,omitempty"`
}

func studentDetail(ctx context.Context, env *pipelineEnv, studentID string) ([]subjectDetail, error) {
	metrics, err := env.Store.ListMetrics(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "list metrics")
	}
	insights, err := env.Store.ListInsights(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "list insights")
	}
	narratives, err := env.Store.ListNarratives(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "list narratives")
	}

	bySubject := make(map[string]*subjectDetail)
	var order []string
	get := func(subject string) *subjectDetail {
		d, ok := bySubject[subject]
		if !ok {
			d = &subjectDetail{Subject: subject}
			bySubject[subject] = d
			order = append(order, subject)
		}
		return d
	}

	for i := range metrics {
		if metrics[i].StudentID == studentID {
			get(metrics[i].Subject).Metric = &metrics[i]
		}
	}
	for i := range insights {
		if insights[i].StudentID == studentID {
			get(insights[i].Subject).Insight = &insights[i]
		}
	}
	for i := range narratives {
		if narratives[i].StudentID == studentID {
			get(narratives[i].Subject).Narrative = &narratives[i]
		}
	}

	out := make([]subjectDetail, 0, len(order))
	for _, subject := range order {
		out = append(out, *bySubject[subject])
	}
	return out, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Warn("encode response", zap.Error(err))
	}
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

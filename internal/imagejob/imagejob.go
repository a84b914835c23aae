// Package imagejob runs one supervised goroutine per accepted answer that
// turns the answer text into a picture. Every job ends in finish, which
// stores the terminal image state, audits it and reports it to the hub.
package imagejob

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"

	"github.com/playperu/promptparty/internal/metrics"
	"github.com/playperu/promptparty/internal/promptparty"
)

// PublicPrefix is the URL path pictures are served under.
const PublicPrefix = "/pictures/"

const (
	connectionID    = "image-service"
	maxErrorLen     = 200
	persistDeadline = 10 * time.Second
)

// Generator turns a prompt into encoded image bytes.
type Generator interface {
	Generate(ctx context.Context, model, prompt string) ([]byte, error)
}

type AnswerStore interface {
	SetAnswerImage(ctx context.Context, key promptparty.AnswerKey, u promptparty.ImageUpdate) error
}

// Notifier receives every finished job. The hub implements it.
type Notifier interface {
	ImageDone(res promptparty.ImageResult)
}

type Recorder interface {
	Record(promptparty.EventLogEntry)
}

type Config struct {
	// Generator may be nil, which turns Enqueue into a no-op.
	Generator    Generator
	Store        AnswerStore
	Notifier     Notifier
	Recorder     Recorder
	Pictures     afero.Fs
	DefaultModel string
	Clock        clockwork.Clock
	Logger       *slog.Logger
}

type Dispatcher struct {
	gen          Generator
	store        AnswerStore
	notify       Notifier
	rec          Recorder
	fs           afero.Fs
	defaultModel string
	clock        clockwork.Clock
	log          *slog.Logger

	wg sync.WaitGroup
}

func New(cfg Config) *Dispatcher {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Pictures == nil {
		cfg.Pictures = afero.NewMemMapFs()
	}
	return &Dispatcher{
		gen:          cfg.Generator,
		store:        cfg.Store,
		notify:       cfg.Notifier,
		rec:          cfg.Recorder,
		fs:           cfg.Pictures,
		defaultModel: cfg.DefaultModel,
		clock:        cfg.Clock,
		log:          cfg.Logger,
	}
}

// SetNotifier wires the hub after both sides are constructed.
func (d *Dispatcher) SetNotifier(n Notifier) { d.notify = n }

// Enabled reports whether a generator is configured.
func (d *Dispatcher) Enabled() bool { return d.gen != nil }

// Enqueue starts generation for job and returns immediately.
func (d *Dispatcher) Enqueue(job promptparty.ImageJob) {
	if d.gen == nil {
		d.log.Debug("image generation disabled", "round_id", job.RoundID, "player", job.PlayerName)
		return
	}
	d.wg.Add(1)
	metrics.ImageJobsInFlight.Inc()
	go d.supervise(job)
}

// Wait blocks until every started job has finished.
func (d *Dispatcher) Wait() { d.wg.Wait() }

// Outcome is what an attempt produced. Err set means failure.
type Outcome struct {
	Path  string
	Model string
	Err   error
}

func (d *Dispatcher) supervise(job promptparty.ImageJob) {
	defer d.wg.Done()
	defer metrics.ImageJobsInFlight.Dec()

	started := d.clock.Now()
	d.log.Info("image job started", "round_id", job.RoundID, "player", job.PlayerName)
	d.finish(job, d.attempt(job), started)
}

// attempt never panics: a panic anywhere inside becomes a failed Outcome.
func (d *Dispatcher) attempt(job promptparty.ImageJob) (out Outcome) {
	model := job.ModelName
	if model == "" {
		model = d.defaultModel
	}
	out.Model = model

	defer func() {
		if r := recover(); r != nil {
			out = Outcome{Model: model, Err: fmt.Errorf("image job panicked: %v", r)}
		}
	}()

	img, err := d.gen.Generate(context.Background(), model, job.Prompt)
	if err != nil {
		out.Err = fmt.Errorf("generating image: %w", err)
		return out
	}
	if len(img) == 0 {
		out.Err = errors.New("provider returned an empty image")
		return out
	}

	name := ArtifactName(job.RoundID, job.PlayerID)
	if err := afero.WriteFile(d.fs, "/"+name, img, 0o644); err != nil {
		out.Err = fmt.Errorf("saving image: %w", err)
		return out
	}
	out.Path = PublicPrefix + name
	return out
}

func (d *Dispatcher) finish(job promptparty.ImageJob, out Outcome, started time.Time) {
	update := toUpdate(out)

	ctx, cancel := context.WithTimeout(context.Background(), persistDeadline)
	defer cancel()

	err := d.store.SetAnswerImage(ctx, job.Key(), update)
	if err != nil && update.Status == promptparty.ImageOK {
		d.log.Error("recording image", "round_id", job.RoundID, "player", job.PlayerName, "error", err)
		update = toUpdate(Outcome{Model: out.Model, Err: fmt.Errorf("recording image: %w", err)})
		err = d.store.SetAnswerImage(ctx, job.Key(), update)
	}
	if err != nil {
		d.log.Error("recording image failure", "round_id", job.RoundID, "player", job.PlayerName, "error", err)
	}

	finished := d.clock.Now()
	metrics.ImageJobDuration.Observe(finished.Sub(started).Seconds())
	metrics.ImageJobsTotal.WithLabelValues(string(update.Status)).Inc()

	d.audit(job, update, started, finished)
	if update.Status == promptparty.ImageOK {
		d.log.Info("image job finished", "round_id", job.RoundID, "player", job.PlayerName, "path", update.Path)
	} else {
		d.log.Warn("image job failed", "round_id", job.RoundID, "player", job.PlayerName, "error", update.Error)
	}

	if d.notify != nil {
		d.notify.ImageDone(promptparty.ImageResult{Job: job, Update: update})
	}
}

func toUpdate(out Outcome) promptparty.ImageUpdate {
	if out.Err != nil {
		return promptparty.ImageUpdate{
			Status:    promptparty.ImageError,
			Error:     shorten(out.Err.Error()),
			ModelName: out.Model,
		}
	}
	return promptparty.ImageUpdate{Status: promptparty.ImageOK, Path: out.Path, ModelName: out.Model}
}

func shorten(s string) string {
	if s == "" {
		return "unknown error"
	}
	r := []rune(s)
	if len(r) > maxErrorLen {
		return string(r[:maxErrorLen]) + "…"
	}
	return s
}

type auditPayload struct {
	RoundID     string    `json:"roundId"`
	RoundNumber int       `json:"roundNumber"`
	PlayerID    string    `json:"playerId"`
	PlayerName  string    `json:"playerName"`
	ModelName   string    `json:"modelName,omitempty"`
	ImagePath   string    `json:"imagePath,omitempty"`
	Error       string    `json:"error,omitempty"`
	StartedAt   time.Time `json:"startedAt"`
	FinishedAt  time.Time `json:"finishedAt"`
}

func (d *Dispatcher) audit(job promptparty.ImageJob, u promptparty.ImageUpdate, started, finished time.Time) {
	typ := "image_generated"
	if u.Status != promptparty.ImageOK {
		typ = "image_generation_error"
	}
	data, err := json.Marshal(auditPayload{
		RoundID:     job.RoundID,
		RoundNumber: job.RoundNumber,
		PlayerID:    job.PlayerID,
		PlayerName:  job.PlayerName,
		ModelName:   u.ModelName,
		ImagePath:   u.Path,
		Error:       u.Error,
		StartedAt:   started,
		FinishedAt:  finished,
	})
	if err != nil {
		d.log.Error("encoding image audit", "error", err)
		return
	}
	d.rec.Record(promptparty.EventLogEntry{
		Type:         typ,
		Direction:    promptparty.ServerToClient,
		Role:         promptparty.RoleSystem,
		PlayerName:   job.PlayerName,
		ConnectionID: connectionID,
		Payload:      data,
	})
}

var unsafeChars = regexp.MustCompile(`[^\w-]+`)

// ArtifactName is the file name for the picture of playerID's answer in
// roundID. It is stable and distinct per (round, player).
func ArtifactName(roundID, playerID string) string {
	return unsafeChars.ReplaceAllString(roundID, "_") + "-" + unsafeChars.ReplaceAllString(playerID, "_") + ".png"
}

package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/brokermesh/logging"
	"github.com/hupe1980/brokermesh/rpc"
)

// Caller issues one request/reply call. *rpc.Client implements it.
type Caller interface {
	Call(ctx context.Context, queue string, req, reply any, optFns ...func(o *rpc.CallOptions)) error
}

// Queues names the backend queue of each capability.
type Queues struct {
	Location    string
	Weather     string
	Preferences string
	Events      string
	Places      string
	Content     string
}

// DefaultQueues returns the conventional queue names.
func DefaultQueues() Queues {
	return Queues{
		Location:    "location_rpc",
		Weather:     "weather_rpc",
		Preferences: "user_preferences_rpc",
		Events:      "events_rpc",
		Places:      "places_rpc",
		Content:     "blogs_rpc",
	}
}

// Options configures an Orchestrator.
type Options struct {
	Queues Queues
	// LookupTimeout bounds calls to low latency backends.
	LookupTimeout time.Duration
	// ScrapeTimeout bounds calls to the events backend, which renders pages.
	ScrapeTimeout time.Duration
	// ConcurrentLookups resolves location and weather concurrently. The
	// default keeps them strictly ordered.
	ConcurrentLookups bool
	// PlacesQuery is the query of the parallel places call.
	PlacesQuery string
	// ContentLanguage and ContentMaxResults shape the parallel content call.
	ContentLanguage   string
	ContentMaxResults int
	// Classifier selects the context category. Nil disables derivation.
	Classifier Classifier
	// SummaryTemplate overrides DefaultSummaryTemplate.
	SummaryTemplate string
	// Now supplies the clock used when the request carries no time of day.
	Now func() time.Time
	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// Orchestrator composes backend calls into one Aggregate Result.
type Orchestrator struct {
	caller     Caller
	opts       Options
	summarizer *summarizer
	logger     logging.Logger
}

// phaseLogger is implemented by logging.MeshLogger.
type phaseLogger interface {
	LogPhase(phase string, steps int, dur time.Duration, err error)
}

// New creates an Orchestrator issuing its calls through caller.
func New(caller Caller, optFns ...func(o *Options)) (*Orchestrator, error) {
	opts := Options{
		Queues:            DefaultQueues(),
		LookupTimeout:     10 * time.Second,
		ScrapeTimeout:     rpc.DefaultTimeout,
		PlacesQuery:       "park",
		ContentLanguage:   "en",
		ContentMaxResults: 5,
		Classifier:        RuleClassifier{},
		Now:               time.Now,
		Logger:            logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	s, err := newSummarizer(opts.SummaryTemplate)
	if err != nil {
		return nil, err
	}
	return &Orchestrator{caller: caller, opts: opts, summarizer: s, logger: opts.Logger}, nil
}

// Run produces the Aggregate Result for req.
//
// The sequential phase resolves location, weather and preferences; any
// failure aborts with a *PhaseError. The parallel phase fetches events,
// places and content concurrently and is all-or-nothing: a failure of one
// member aborts with a *PhaseError wrapping a *FanOutError once all members
// settled. The derivation phase's enrichment lookup never aborts.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	res := &Result{}
	if err := o.phase(ctx, PhaseSequential, 3, func(ctx context.Context) error {
		return o.sequentialPhase(ctx, req, res)
	}); err != nil {
		return nil, err
	}

	if err := o.phase(ctx, PhaseParallel, 3, func(ctx context.Context) error {
		return o.parallelPhase(ctx, req, res)
	}); err != nil {
		return nil, err
	}

	o.derivationPhase(ctx, req, res)

	summary, err := o.summarizer.render(res)
	if err != nil {
		return nil, &PhaseError{Phase: PhaseAssembly, Err: err}
	}
	res.Summary = summary
	return res, nil
}

func (o *Orchestrator) phase(ctx context.Context, name string, steps int, fn func(ctx context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	if err != nil {
		perr := &PhaseError{Phase: name, Err: err}
		var se StepError
		if errors.As(err, &se) {
			perr.Step, perr.Err = se.Step, se.Err
		}
		err = perr
	}
	if l, ok := o.logger.(phaseLogger); ok {
		l.LogPhase(name, steps, time.Since(start), err)
	} else if err != nil {
		o.logger.Error("orchestrator.phase.failed", "phase", name, "error", err.Error())
	} else {
		o.logger.Debug("orchestrator.phase.completed", "phase", name, "duration_ms", time.Since(start).Milliseconds())
	}
	return err
}

func (o *Orchestrator) sequentialPhase(ctx context.Context, req Request, res *Result) error {
	location := step{name: SlotLocation, run: func(ctx context.Context) error {
		var loc Location
		if err := o.lookup(ctx, o.opts.Queues.Location, LocationRequest{
			Lat:         req.Lat,
			Lon:         req.Lon,
			Time:        req.TimeOfDay,
			UserID:      req.UserID,
			Age:         req.Age,
			Gender:      req.Gender,
			MotionState: req.MotionState,
		}, &loc); err != nil {
			return err
		}
		res.Location = &loc
		return nil
	}}
	weather := step{name: SlotWeather, run: func(ctx context.Context) error {
		var w Weather
		if err := o.lookup(ctx, o.opts.Queues.Weather, WeatherRequest{Lat: req.Lat, Lon: req.Lon}, &w); err != nil {
			return err
		}
		res.Weather = &w
		return nil
	}}
	preferences := step{name: SlotPreferences, run: func(ctx context.Context) error {
		var p Preferences
		if err := o.lookup(ctx, o.opts.Queues.Preferences, PreferencesRequest{UserID: req.UserID}, &p); err != nil {
			return err
		}
		res.Preferences = &p
		return nil
	}}

	if !o.opts.ConcurrentLookups {
		return runSequential(ctx, location, weather, preferences)
	}
	both := step{name: "location+weather", run: func(ctx context.Context) error {
		return runParallel(ctx, location, weather)
	}}
	return runSequential(ctx, both, preferences)
}

func (o *Orchestrator) parallelPhase(ctx context.Context, req Request, res *Result) error {
	events := step{name: SlotEvents, run: func(ctx context.Context) error {
		var out EventsResponse
		if err := o.caller.Call(ctx, o.opts.Queues.Events, EventsRequest{
			State:   res.Location.Address.State,
			Country: res.Location.Address.Country,
		}, &out, rpc.WithTimeout(o.opts.ScrapeTimeout)); err != nil {
			return err
		}
		res.Events = nonNil(out.Events)
		return nil
	}}
	places := step{name: SlotPlaces, run: func(ctx context.Context) error {
		var out PlacesResponse
		if err := o.lookup(ctx, o.opts.Queues.Places, PlacesRequest{Lat: req.Lat, Lon: req.Lon, Query: o.opts.PlacesQuery}, &out); err != nil {
			return err
		}
		res.Places = nonNil(out.Places)
		return nil
	}}
	content := step{name: SlotContent, run: func(ctx context.Context) error {
		var out ContentResponse
		if err := o.lookup(ctx, o.opts.Queues.Content, ContentRequest{
			Language:   o.opts.ContentLanguage,
			MaxResults: o.opts.ContentMaxResults,
		}, &out); err != nil {
			return err
		}
		res.Content = nonNil(out.Blogs)
		return nil
	}}

	if err := runParallel(ctx, events, places, content); err != nil {
		// no partial aggregate
		res.Events, res.Places, res.Content = nil, nil, nil
		return err
	}
	return nil
}

// derivationPhase classifies the request and runs the category's lookup.
// Failures only leave the enrichment slot empty.
func (o *Orchestrator) derivationPhase(ctx context.Context, req Request, res *Result) {
	if o.opts.Classifier == nil {
		return
	}
	cat, ok := o.opts.Classifier.Classify(o.signals(req, res))
	if !ok {
		return
	}
	res.Category = cat
	if cat.Lookup.Kind == LookupNone {
		return
	}

	start := time.Now()
	items, err := o.enrich(ctx, req, res, cat.Lookup)
	if err != nil {
		res.EnrichmentError = err.Error()
		o.logger.Warn("orchestrator.enrichment.degraded", "category", cat.Name, "lookup", string(cat.Lookup.Kind), "error", err.Error())
		return
	}
	res.Enrichment = items
	o.logger.Debug("orchestrator.enrichment.completed", "category", cat.Name, "items", len(items), "duration_ms", time.Since(start).Milliseconds())
}

func (o *Orchestrator) enrich(ctx context.Context, req Request, res *Result, l Lookup) ([]json.RawMessage, error) {
	switch l.Kind {
	case LookupPlaces:
		var out PlacesResponse
		err := o.lookup(ctx, o.opts.Queues.Places, PlacesRequest{Lat: req.Lat, Lon: req.Lon, Query: l.Query}, &out)
		return nonNil(out.Places), err
	case LookupEvents:
		var out EventsResponse
		err := o.caller.Call(ctx, o.opts.Queues.Events, EventsRequest{
			State:   res.Location.Address.State,
			Country: res.Location.Address.Country,
		}, &out, rpc.WithTimeout(o.opts.ScrapeTimeout))
		return nonNil(out.Events), err
	case LookupContent:
		var out ContentResponse
		err := o.lookup(ctx, o.opts.Queues.Content, ContentRequest{
			Query:      l.Query,
			Language:   o.opts.ContentLanguage,
			MaxResults: o.opts.ContentMaxResults,
		}, &out)
		return nonNil(out.Blogs), err
	default:
		return nil, fmt.Errorf("orchestrator: unknown lookup kind %q", l.Kind)
	}
}

func (o *Orchestrator) signals(req Request, res *Result) Signals {
	now := o.opts.Now()
	s := Signals{
		Hour:        now.Hour(),
		Weekday:     now.Weekday(),
		Age:         req.Age,
		Gender:      req.Gender,
		MotionState: req.MotionState,
	}
	if req.TimeOfDay != "" {
		if t, err := time.Parse(TimeLayout, req.TimeOfDay); err == nil {
			s.Hour = t.Hour()
		}
	}
	if res.Location != nil {
		s.Context = res.Location.Context
	}
	return s
}

func (o *Orchestrator) lookup(ctx context.Context, queue string, req, reply any) error {
	return o.caller.Call(ctx, queue, req, reply, rpc.WithTimeout(o.opts.LookupTimeout))
}

func nonNil(items []json.RawMessage) []json.RawMessage {
	if items == nil {
		return []json.RawMessage{}
	}
	return items
}

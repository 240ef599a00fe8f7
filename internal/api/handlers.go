package api

import (
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/wear.report/internal/activity"
	"github.com/banshee-data/wear.report/internal/db"
	"github.com/banshee-data/wear.report/internal/httputil"
	"github.com/banshee-data/wear.report/internal/ingest"
	"github.com/banshee-data/wear.report/internal/monitoring"
	"github.com/banshee-data/wear.report/internal/questionnaire"
	"github.com/banshee-data/wear.report/internal/security"
	"github.com/banshee-data/wear.report/internal/timeseries"
	"github.com/banshee-data/wear.report/internal/units"
	"github.com/banshee-data/wear.report/internal/wear"
)

type runJSON struct {
	ID           string    `json:"run_id"`
	Kind         string    `json:"kind"`
	Source       string    `json:"source"`
	SamplingRate float64   `json:"sampling_rate"`
	Samples      int       `json:"samples"`
	Channels     int       `json:"channels"`
	Timezone     string    `json:"timezone"`
	CreatedAt    time.Time `json:"created_at"`
}

func toRunJSON(r db.Run) runJSON {
	return runJSON{
		ID:           r.ID.String(),
		Kind:         r.Kind,
		Source:       r.Source,
		SamplingRate: r.SamplingRate,
		Samples:      r.Samples,
		Channels:     r.Channels,
		Timezone:     r.Timezone,
		CreatedAt:    r.CreatedAt,
	}
}

type windowJSON struct {
	Index int        `json:"index"`
	Start *time.Time `json:"start,omitempty"`
	End   *time.Time `json:"end,omitempty"`
	Wear  int        `json:"wear"`
}

type intervalJSON struct {
	FirstWindow int        `json:"first_window"`
	LastWindow  int        `json:"last_window"`
	Start       *time.Time `json:"start,omitempty"`
	End         *time.Time `json:"end,omitempty"`
}

type summaryJSON struct {
	Windows      int           `json:"windows"`
	WearHours    float64       `json:"wear_hours"`
	NonWearHours float64       `json:"non_wear_hours"`
	WearBlocks   int           `json:"wear_blocks"`
	MajorBlock   *intervalJSON `json:"major_block,omitempty"`
}

type countJSON struct {
	Minute int        `json:"minute"`
	Start  *time.Time `json:"start,omitempty"`
	Count  float64    `json:"count"`
}

type wearJSON struct {
	Run     *runJSON     `json:"run,omitempty"`
	Summary summaryJSON  `json:"summary"`
	Windows []windowJSON `json:"windows"`
}

type countsJSON struct {
	Run    *runJSON    `json:"run,omitempty"`
	Counts []countJSON `json:"counts"`
}

// stamp returns nil for the zero time so untimed results omit the field.
func stamp(t time.Time, loc *time.Location) *time.Time {
	if t.IsZero() {
		return nil
	}
	t = t.In(loc)
	return &t
}

func windowsJSON(res *wear.Result, loc *time.Location) []windowJSON {
	out := make([]windowJSON, len(res.Windows))
	for i, w := range res.Windows {
		out[i] = windowJSON{Index: i, Start: stamp(w.Start, loc), End: stamp(w.End, loc), Wear: w.Wear}
	}
	return out
}

func summarize(res *wear.Result, loc *time.Location) summaryJSON {
	s := res.Summarize()
	out := summaryJSON{
		Windows:      s.Windows,
		WearHours:    s.WearHours,
		NonWearHours: s.NonWearHours,
		WearBlocks:   s.WearBlocks,
	}
	if iv, err := res.MajorWearBlock(); err == nil {
		out.MajorBlock = &intervalJSON{
			FirstWindow: iv.FirstWindow,
			LastWindow:  iv.LastWindow,
			Start:       stamp(iv.Start, loc),
			End:         stamp(iv.End, loc),
		}
	}
	return out
}

func countsOf(res *activity.Result, loc *time.Location) []countJSON {
	samples := res.Samples()
	out := make([]countJSON, len(samples))
	for i, c := range samples {
		out[i] = countJSON{Minute: i, Start: stamp(c.Time, loc), Count: c.Count}
	}
	return out
}

// run loads the run named by the {id} path value and its display location.
func (s *Server) run(r *http.Request) (db.Run, *time.Location, error) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return db.Run{}, nil, fmt.Errorf("%w: invalid run id %q", timeseries.ErrValidation, r.PathValue("id"))
	}
	run, err := s.db.GetRun(id)
	if err != nil {
		return db.Run{}, nil, err
	}
	loc, err := units.LoadTimezone(run.Timezone)
	if err != nil {
		loc = time.UTC
	}
	return run, loc, nil
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.db.Runs(r.URL.Query().Get("source"))
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]runJSON, len(runs))
	for i, run := range runs {
		out[i] = toRunJSON(run)
	}
	httputil.WriteJSONOK(w, out)
}

func (s *Server) showRun(w http.ResponseWriter, r *http.Request) {
	run, _, err := s.run(r)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, toRunJSON(run))
}

func (s *Server) deleteRun(w http.ResponseWriter, r *http.Request) {
	run, _, err := s.run(r)
	if err == nil {
		err = s.db.DeleteRun(run.ID)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// wearRun loads a wear run's labelling, rejecting runs of another kind.
func (s *Server) wearRun(r *http.Request) (*wear.Result, *time.Location, error) {
	run, loc, err := s.run(r)
	if err != nil {
		return nil, nil, err
	}
	if run.Kind != db.KindWear {
		return nil, nil, fmt.Errorf("%w: run %s is a %s run", timeseries.ErrValidation, run.ID, run.Kind)
	}
	res, err := s.db.WearWindows(run.ID)
	return res, loc, err
}

func (s *Server) showWindows(w http.ResponseWriter, r *http.Request) {
	res, loc, err := s.wearRun(r)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, windowsJSON(res, loc))
}

func (s *Server) showSummary(w http.ResponseWriter, r *http.Request) {
	res, loc, err := s.wearRun(r)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, summarize(res, loc))
}

func (s *Server) showCounts(w http.ResponseWriter, r *http.Request) {
	run, loc, err := s.run(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if run.Kind != db.KindCounts {
		writeError(w, fmt.Errorf("%w: run %s is a %s run", timeseries.ErrValidation, run.ID, run.Kind))
		return
	}
	res, err := s.db.ActivityCounts(run.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, countsOf(res, loc))
}

// upload is a recording posted as CSV or EDF with its query-string options.
type upload struct {
	ts     *timeseries.TimeSeries
	loc    *time.Location
	tz     string
	source string
	store  bool
}

// readUpload parses the request body as a recording. The body is EDF when
// the query has format=edf or the Content-Type is application/edf, and CSV
// otherwise. The query may set rate, tz and unit to override the server
// config, source to name the recording and store=true to record the run.
// EDF uploads also take names (comma-separated signal names) and start.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (*upload, error) {
	q := r.URL.Query()
	rate := s.cfg.GetSamplingRate()
	if v := q.Get("rate"); v != "" {
		var err error
		if rate, err = strconv.ParseFloat(v, 64); err != nil {
			return nil, fmt.Errorf("%w: invalid rate %q", timeseries.ErrValidation, v)
		}
	}
	tz := s.cfg.GetTimezone()
	if v := q.Get("tz"); v != "" {
		tz = v
	}
	loc, err := units.LoadTimezone(tz)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", timeseries.ErrValidation, err)
	}
	unit := s.cfg.GetAccUnit()
	if v := q.Get("unit"); v != "" {
		unit = v
	}

	opts := ingest.Options{
		SamplingRate: rate,
		Location:     loc,
		AccUnit:      unit,
	}
	body := http.MaxBytesReader(w, r.Body, maxUploadBytes)
	var ts *timeseries.TimeSeries
	if isEDFUpload(r) {
		if v := q.Get("names"); v != "" {
			opts.Names = strings.Split(v, ",")
		}
		if v := q.Get("start"); v != "" {
			if opts.Start, err = ingest.ParseTime(v, loc); err != nil {
				return nil, fmt.Errorf("%w: start: %v", timeseries.ErrValidation, err)
			}
		}
		ts, err = ingest.ReadEDF(body, opts)
	} else {
		ts, err = ingest.ReadCSV(body, opts)
	}
	if err != nil {
		return nil, err
	}
	up := &upload{ts: ts, loc: loc, tz: tz, source: "upload", store: q.Get("store") == "true"}
	if v := q.Get("source"); v != "" {
		up.source = security.SanitizeFilename(v)
	}
	if up.store && s.db == nil {
		return nil, fmt.Errorf("%w: server has no results database", timeseries.ErrValidation)
	}
	return up, nil
}

func isEDFUpload(r *http.Request) bool {
	if strings.EqualFold(r.URL.Query().Get("format"), "edf") {
		return true
	}
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return ct == "application/edf"
}

func (up *upload) run() db.Run {
	return db.Run{
		Source:       up.source,
		SamplingRate: up.ts.SamplingRate,
		Samples:      up.ts.Len(),
		Channels:     up.ts.NumChannels(),
		Timezone:     up.tz,
	}
}

func (s *Server) analyzeWear(w http.ResponseWriter, r *http.Request) {
	up, err := s.readUpload(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	det, err := wear.NewDetector(up.ts.SamplingRate)
	if err != nil {
		writeError(w, err)
		return
	}
	start := s.clock.Now()
	res, err := det.Predict(up.ts)
	monitoring.ObserveAnalysis(db.KindWear, up.ts.Len(), s.clock.Since(start), err)
	if err != nil {
		writeError(w, err)
		return
	}

	out := wearJSON{Summary: summarize(res, up.loc), Windows: windowsJSON(res, up.loc)}
	if up.store {
		run, err := s.db.RecordWearRun(up.run(), res)
		if err != nil {
			writeError(w, err)
			return
		}
		rj := toRunJSON(run)
		out.Run = &rj
	}
	httputil.WriteJSONOK(w, out)
}

func (s *Server) analyzeCounts(w http.ResponseWriter, r *http.Request) {
	up, err := s.readUpload(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	engine, err := activity.NewEngine(activity.Config{SamplingRate: up.ts.SamplingRate})
	if err != nil {
		writeError(w, err)
		return
	}
	start := s.clock.Now()
	res, err := engine.Calculate(up.ts)
	monitoring.ObserveAnalysis(db.KindCounts, up.ts.Len(), s.clock.Since(start), err)
	if err != nil {
		writeError(w, err)
		return
	}

	out := countsJSON{Counts: countsOf(res, up.loc)}
	if up.store {
		run, err := s.db.RecordCountsRun(up.run(), res)
		if err != nil {
			writeError(w, err)
			return
		}
		rj := toRunJSON(run)
		out.Run = &rj
	}
	httputil.WriteJSONOK(w, out)
}

func (s *Server) listQuestionnaires(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, s.reg.Names())
}

func (s *Server) scoreQuestionnaire(w http.ResponseWriter, r *http.Request) {
	var responses questionnaire.Responses
	if err := httputil.DecodeJSON(w, r, 1<<20, &responses); err != nil {
		httputil.WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	scores, err := s.reg.Score(r.PathValue("name"), responses)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, scores)
}

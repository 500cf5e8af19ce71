package sink

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"odjitter/internal/jitter"
	"odjitter/internal/metrics"
	"odjitter/internal/store"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
)

func trip(i int) jitter.Trip {
	return jitter.Trip{
		Origin:      orb.Point{float64(i), 0.5},
		Destination: orb.Point{float64(i) + 1, 0.25},
		Properties:  map[string]any{"geo_code1": "007", "all": 2.5, "mode": "walk"},
	}
}

func TestGeoJSONStreamsFeatureCollection(t *testing.T) {
	var buf bytes.Buffer
	s, err := NewGeoJSON(&buf)
	if err != nil {
		t.Fatal(err)
	}
	for i := range 3 {
		if err := s.Write(context.Background(), trip(i)); err != nil {
			t.Fatalf("Write %d: %v", i, err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(buf.Bytes())
	if err != nil {
		t.Fatalf("output is not a FeatureCollection: %v\n%s", err, buf.String())
	}
	if len(fc.Features) != 3 {
		t.Fatalf("got %d features, want 3", len(fc.Features))
	}
	ls, ok := fc.Features[2].Geometry.(orb.LineString)
	if !ok || len(ls) != 2 || ls[0] != (orb.Point{2, 0.5}) || ls[1] != (orb.Point{3, 0.25}) {
		t.Fatalf("feature 2 geometry = %#v", fc.Features[2].Geometry)
	}
	if fc.Features[0].Properties["geo_code1"] != "007" || fc.Features[0].Properties["all"] != 2.5 {
		t.Fatalf("properties = %v", fc.Features[0].Properties)
	}
}

func TestGeoJSONEmptyCollection(t *testing.T) {
	var buf bytes.Buffer
	s, err := NewGeoJSON(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(buf.Bytes())
	if err != nil || len(fc.Features) != 0 {
		t.Fatalf("empty output = %q, err %v", buf.String(), err)
	}
}

func TestGeoJSONSeqOneFeaturePerLine(t *testing.T) {
	var buf bytes.Buffer
	s := NewGeoJSONSeq(&buf)
	for i := range 2 {
		if err := s.Write(context.Background(), trip(i)); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	sc := bufio.NewScanner(&buf)
	n := 0
	for sc.Scan() {
		f, err := geojson.UnmarshalFeature(sc.Bytes())
		if err != nil {
			t.Fatalf("line %d: %v", n+1, err)
		}
		if _, ok := f.Geometry.(orb.LineString); !ok {
			t.Fatalf("line %d geometry = %T", n+1, f.Geometry)
		}
		n++
	}
	if n != 2 {
		t.Fatalf("got %d lines, want 2", n)
	}
}

func TestCreatePicksFormatByExtension(t *testing.T) {
	dir := t.TempDir()
	for name, seq := range map[string]bool{"out.geojson": false, "out.geojsonl": true, "OUT.NDJSON": true} {
		path := filepath.Join(dir, name)
		s, err := Create(path)
		if err != nil {
			t.Fatal(err)
		}
		if err := s.Write(context.Background(), trip(0)); err != nil {
			t.Fatal(err)
		}
		if err := s.Close(); err != nil {
			t.Fatal(err)
		}
		b, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		isCollection := strings.HasPrefix(string(b), `{"type":"FeatureCollection"`)
		if isCollection == seq {
			t.Errorf("%s: collection=%v, want seq=%v", name, isCollection, seq)
		}
	}
	if _, err := Create(filepath.Join(dir, "missing", "out.geojson")); err == nil {
		t.Fatalf("expected error for unwritable path")
	}
}

type memSink struct {
	trips  []jitter.Trip
	err    error
	closed bool
}

func (m *memSink) Write(_ context.Context, t jitter.Trip) error {
	if m.err != nil {
		return m.err
	}
	m.trips = append(m.trips, t)
	return nil
}

func (m *memSink) Close() error {
	m.closed = true
	return nil
}

func TestTeeFansOutInOrder(t *testing.T) {
	a, b := &memSink{}, &memSink{}
	tee := NewTee(a, nil, b)
	for i := range 2 {
		if err := tee.Write(context.Background(), trip(i)); err != nil {
			t.Fatal(err)
		}
	}
	if len(a.trips) != 2 || len(b.trips) != 2 {
		t.Fatalf("a=%d b=%d trips, want 2 each", len(a.trips), len(b.trips))
	}
	if err := tee.Close(); err != nil {
		t.Fatal(err)
	}
	if !a.closed || !b.closed {
		t.Fatalf("downstream sinks not closed")
	}

	boom := errors.New("boom")
	c := &memSink{}
	if err := NewTee(&memSink{err: boom}, c).Write(context.Background(), trip(0)); !errors.Is(err, boom) {
		t.Fatalf("want first sink error, got %v", err)
	}
	if len(c.trips) != 0 {
		t.Fatalf("later sink written after an earlier failure")
	}
}

func TestInstrumentCountsErrors(t *testing.T) {
	boom := errors.New("boom")
	before := testutil.ToFloat64(metrics.SinkErrorsTotal.WithLabelValues("test"))
	s := Instrument("test", &memSink{err: boom})
	if err := s.Write(context.Background(), trip(0)); !errors.Is(err, boom) {
		t.Fatalf("want wrapped sink error, got %v", err)
	}
	if got := testutil.ToFloat64(metrics.SinkErrorsTotal.WithLabelValues("test")) - before; got != 1 {
		t.Fatalf("error counter advanced by %v, want 1", got)
	}
	inner := &memSink{}
	if err := Instrument("test", inner).(interface{ Close() error }).Close(); err != nil || !inner.closed {
		t.Fatalf("Close not delegated: %v", err)
	}
}

type fakeStore struct {
	batches  [][]store.TripRow
	finished int64
	status   string
	reason   string
}

func (f *fakeStore) InsertTrips(_ context.Context, _ string, rows []store.TripRow) error {
	f.batches = append(f.batches, append([]store.TripRow(nil), rows...))
	return nil
}

func (f *fakeStore) FinishRun(_ context.Context, _ string, trips int64) error {
	f.finished, f.status = trips, "finished"
	return nil
}

func (f *fakeStore) FailRun(_ context.Context, _ string, trips int64, reason string) error {
	f.finished, f.status, f.reason = trips, "failed", reason
	return nil
}

func TestPostgresBatches(t *testing.T) {
	fs := &fakeStore{}
	p := NewPostgres(fs, "run-1", 2)
	for i := range 5 {
		if err := p.Write(context.Background(), trip(i)); err != nil {
			t.Fatal(err)
		}
	}
	if len(fs.batches) != 2 {
		t.Fatalf("%d batches before Close, want 2", len(fs.batches))
	}
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
	if len(fs.batches) != 3 || len(fs.batches[2]) != 1 {
		t.Fatalf("batches = %d, last size %d", len(fs.batches), len(fs.batches[len(fs.batches)-1]))
	}
	if fs.finished != 5 || fs.status != "finished" {
		t.Fatalf("run recorded as %s with %d trips, want finished/5", fs.status, fs.finished)
	}
	last := fs.batches[2][0]
	if last.Seq != 5 || last.Mode != "walk" || last.OriginLon != 4 || last.DestLat != 0.25 {
		t.Fatalf("last row = %+v", last)
	}
	var props map[string]any
	if err := json.Unmarshal(last.Properties, &props); err != nil || props["geo_code1"] != "007" {
		t.Fatalf("properties = %s, err %v", last.Properties, err)
	}
}

func TestPostgresAbortedRunIsMarkedFailed(t *testing.T) {
	fs := &fakeStore{}
	tee := NewTee(Instrument("geojson", &memSink{}), Instrument("postgres", NewPostgres(fs, "run-2", 10)))
	for i := range 3 {
		if err := tee.Write(context.Background(), trip(i)); err != nil {
			t.Fatal(err)
		}
	}
	tee.Abort(errors.New("line 5: unknown zone"))
	if err := tee.Close(); err != nil {
		t.Fatal(err)
	}
	if fs.status != "failed" || fs.finished != 3 || fs.reason != "line 5: unknown zone" {
		t.Fatalf("run recorded as %q with %d trips (%q), want failed/3", fs.status, fs.finished, fs.reason)
	}
	if len(fs.batches) != 1 || len(fs.batches[0]) != 3 {
		t.Fatalf("buffered trips not flushed before marking the run failed: %d batches", len(fs.batches))
	}
}

type fakeStream struct {
	args []*redis.XAddArgs
}

func (f *fakeStream) XAdd(_ context.Context, a *redis.XAddArgs) *redis.StringCmd {
	f.args = append(f.args, a)
	return redis.NewStringResult("1-0", nil)
}

func TestRedisStreamAppends(t *testing.T) {
	fr := &fakeStream{}
	s := &RedisStream{rc: fr, stream: "od:trips", runID: "run-1", maxLen: 1000}
	if err := s.Write(context.Background(), trip(3)); err != nil {
		t.Fatal(err)
	}
	if len(fr.args) != 1 {
		t.Fatalf("%d XADD calls, want 1", len(fr.args))
	}
	a := fr.args[0]
	if a.Stream != "od:trips" || a.MaxLen != 1000 || !a.Approx {
		t.Fatalf("XAddArgs = %+v", a)
	}
	vals := a.Values.(map[string]any)
	if vals["run_id"] != "run-1" || vals["origin_lon"] != 3.0 || vals["dest_lon"] != 4.0 {
		t.Fatalf("values = %v", vals)
	}
	if !strings.Contains(vals["properties"].(string), `"mode":"walk"`) {
		t.Fatalf("properties = %v", vals["properties"])
	}
}

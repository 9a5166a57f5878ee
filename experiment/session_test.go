package experiment

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/pthm-cable/ecochamber/config"
	"github.com/pthm-cable/ecochamber/export"
	"github.com/pthm-cable/ecochamber/script"
	"github.com/pthm-cable/ecochamber/telemetry"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func newTestSession(t *testing.T, adapter export.Adapter) *Session {
	t.Helper()
	cfg := config.Default()
	cfg.Engine.SensorNoise = false
	cfg.Script.StepDelay = 0
	s, err := New(Options{
		Config:  cfg,
		Source:  rand.NewPCG(1, 2),
		Adapter: adapter,
		Logger:  quiet,
		RunID:   "test-run",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func timeout(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestSessionStartsAtExperimentZero(t *testing.T) {
	s := newTestSession(t, nil)
	st := s.State()
	if st.ExperimentID != 0 || st.Time != 0 {
		t.Errorf("experiment %d at time %d, want 0 at 0", st.ExperimentID, st.Time)
	}
	if st.O2 != 200000 || st.CO2 != 400 || !st.Light {
		t.Errorf("state = %+v, want default chamber", st)
	}
	if st.TotalOrganisms() != 0 {
		t.Errorf("organisms = %d, want 0", st.TotalOrganisms())
	}
	if s.RunID() != "test-run" {
		t.Errorf("run id = %q", s.RunID())
	}
}

func TestSessionPlantScenario(t *testing.T) {
	s := newTestSession(t, nil)
	if err := s.AddOrganism("PLANT"); err != nil {
		t.Fatal(err)
	}
	if err := s.Wait(1); err != nil {
		t.Fatal(err)
	}

	st := s.State()
	if st.Time != 1 {
		t.Errorf("time = %d, want 1", st.Time)
	}
	if st.O2 != 200006 || st.CO2 != 394 {
		t.Errorf("O2, CO2 = %v, %v; want 200006, 394", st.O2, st.CO2)
	}
	if st.O2Sensor != 200006 || st.CO2Sensor != 394 {
		t.Errorf("sensors = %v, %v; want 200006, 394", st.O2Sensor, st.CO2Sensor)
	}
}

func TestSessionToggleLight(t *testing.T) {
	s := newTestSession(t, nil)
	_ = s.AddOrganism("PLANT")
	_ = s.AddOrganism("PLANT")

	if on := s.ToggleLight(); on {
		t.Fatal("ToggleLight from default = on, want off")
	}
	if err := s.Wait(1); err != nil {
		t.Fatal(err)
	}
	// Dark: the two plants only respire.
	st := s.State()
	if st.Light {
		t.Error("light still on")
	}
	if st.O2 != 199998 || st.CO2 != 402 {
		t.Errorf("dark O2, CO2 = %v, %v; want 199998, 402", st.O2, st.CO2)
	}

	if on := s.ToggleLight(); !on {
		t.Fatal("second ToggleLight = off, want on")
	}
	if err := s.Wait(1); err != nil {
		t.Fatal(err)
	}
	if got := s.State(); got.O2 <= st.O2 || got.CO2 >= st.CO2 {
		t.Errorf("lit tick O2, CO2 = %v, %v; want photosynthesis after %v, %v", got.O2, got.CO2, st.O2, st.CO2)
	}
}

func TestSessionSnailShortfall(t *testing.T) {
	s := newTestSession(t, nil)
	if err := s.SetVar("o2", 1); err != nil {
		t.Fatal(err)
	}
	if err := s.AddOrganism("SNAIL"); err != nil {
		t.Fatal(err)
	}
	if err := s.Wait(1); err != nil {
		t.Fatal(err)
	}

	n, err := s.GetVar("snailsNumber")
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("snails = %v, want 0", n)
	}
	st := s.State()
	if st.O2 != 0 || st.CO2 != 401 {
		t.Errorf("O2, CO2 = %v, %v; want 0, 401", st.O2, st.CO2)
	}
}

func TestSessionWaitZeroChangesNothing(t *testing.T) {
	s := newTestSession(t, nil)
	_ = s.AddOrganism("PLANT")
	before := s.State()
	if err := s.Wait(0); err != nil {
		t.Fatal(err)
	}
	if got := s.State(); !got.Equal(before) {
		t.Errorf("Wait(0) changed state: %+v -> %+v", before, got)
	}
	if err := s.Wait(-1); !errors.Is(err, ErrNegativeWait) {
		t.Errorf("Wait(-1) error = %v, want ErrNegativeWait", err)
	}
}

func TestSessionResetKeepsSelection(t *testing.T) {
	s := newTestSession(t, nil)
	on, err := s.ToggleTracked("light")
	if err != nil || !on {
		t.Fatalf("ToggleTracked(light) = %v, %v", on, err)
	}
	_ = s.AddOrganism("SNAIL")
	_ = s.Wait(3)

	for range 2 {
		if err := s.Reset(); err != nil {
			t.Fatal(err)
		}
	}

	st := s.State()
	if st.ExperimentID != 2 {
		t.Errorf("experiment = %d, want 2", st.ExperimentID)
	}
	if st.Time != 0 || st.TotalOrganisms() != 0 || st.O2 != 200000 {
		t.Errorf("state after reset = %+v", st)
	}
	if !s.Tracked()["light"] {
		t.Error("light selection lost on reset")
	}
}

func TestSessionCommandErrors(t *testing.T) {
	s := newTestSession(t, nil)
	tests := []struct {
		name string
		err  error
	}{
		{"unknown organism", s.AddOrganism("FISH")},
		{"unknown var", s.SetVar("nope", 1)},
		{"read-only var", s.IncVar("experiment")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err == nil {
				t.Error("expected error")
			}
		})
	}

	if _, err := s.ToggleTracked("o2Sensor"); !errors.Is(err, telemetry.ErrUntracked) {
		t.Errorf("ToggleTracked(o2Sensor) error = %v, want ErrUntracked", err)
	}
}

func TestSessionSensorsFollowTime(t *testing.T) {
	s := newTestSession(t, nil)
	if err := s.SetVar("co2", 500); err != nil {
		t.Fatal(err)
	}
	if got, _ := s.GetVar("co2Sensor"); got != 400 {
		t.Errorf("co2Sensor = %v before time moves, want 400", got)
	}

	if err := s.Wait(1); err != nil {
		t.Fatal(err)
	}
	if got, _ := s.GetVar("co2Sensor"); got != 500 {
		t.Errorf("co2Sensor = %v after wait, want 500", got)
	}

	if err := s.SetVar("o2", 1000); err != nil {
		t.Fatal(err)
	}
	if err := s.IncVar("time"); err != nil {
		t.Fatal(err)
	}
	if got, _ := s.GetVar("o2Sensor"); got != 1000 {
		t.Errorf("o2Sensor = %v after time set, want 1000", got)
	}
}

func TestSessionRecordDataReachesAdapter(t *testing.T) {
	mem := export.NewMemory()
	s := newTestSession(t, mem)
	if _, err := s.ToggleTracked("plantsNumber"); err != nil {
		t.Fatal(err)
	}
	_ = s.AddOrganism("PLANT")
	_ = s.AddOrganism("PLANT")
	_ = s.Wait(2)

	if err := s.RecordData(); err != nil {
		t.Fatal(err)
	}
	if err := s.Flush(timeout(t)); err != nil {
		t.Fatal(err)
	}

	recs := mem.Records()
	if len(recs) != 1 {
		t.Fatalf("records = %d, want 1", len(recs))
	}
	rec := recs[0]
	if rec.ExperimentNumber != 0 {
		t.Errorf("experiment = %d, want 0", rec.ExperimentNumber)
	}
	if v, ok := rec.Get(telemetry.FieldHour); !ok || v != 2 {
		t.Errorf("hour = %v, %v; want 2", v, ok)
	}
	if v, ok := rec.Get("num_plants"); !ok || v != 2 {
		t.Errorf("num_plants = %v, %v; want 2", v, ok)
	}
	if cols := mem.Columns(); len(cols) != 1 || cols[0] != "num_plants" {
		t.Errorf("ensured columns = %v, want [num_plants]", cols)
	}
}

func TestSessionRunsLuaScript(t *testing.T) {
	mem := export.NewMemory()
	s := newTestSession(t, mem)
	src := `
highlightBlock("b1")
setVar("plantsNumber", 3)
for i = 1, 2 do
  wait(5)
  recordData()
end
reset()
`
	if err := s.StartScript(context.Background(), src, false); err != nil {
		t.Fatal(err)
	}
	if err := s.WaitScript(timeout(t)); err != nil {
		t.Fatalf("script error: %v", err)
	}
	if err := s.Flush(timeout(t)); err != nil {
		t.Fatal(err)
	}

	if s.ScriptState() != script.Stopped {
		t.Errorf("state = %v, want STOPPED", s.ScriptState())
	}
	if s.Highlighted() != "" {
		t.Errorf("highlight = %q, want cleared", s.Highlighted())
	}
	recs := mem.Records()
	if len(recs) != 2 {
		t.Fatalf("records = %d, want 2", len(recs))
	}
	if h, _ := recs[1].Get(telemetry.FieldHour); h != 10 {
		t.Errorf("second record hour = %v, want 10", h)
	}
	if st := s.State(); st.ExperimentID != 1 || st.Time != 0 {
		t.Errorf("after reset: experiment %d at time %d", st.ExperimentID, st.Time)
	}
}

func TestSessionStopScriptClearsHighlight(t *testing.T) {
	s := newTestSession(t, nil)
	src := `
highlightBlock("loop")
while true do
  wait(1)
end
`
	if err := s.StartScript(context.Background(), src, true); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for s.State().Time < 3 {
		if time.Now().After(deadline) {
			t.Fatal("script made no progress")
		}
		time.Sleep(time.Millisecond)
	}

	s.StopScript()
	if s.ScriptState() != script.Stopped {
		t.Errorf("state = %v, want STOPPED", s.ScriptState())
	}
	if s.Highlighted() != "" {
		t.Errorf("highlight = %q, want cleared", s.Highlighted())
	}
	stopped := s.State().Time
	time.Sleep(10 * time.Millisecond)
	if got := s.State().Time; got != stopped {
		t.Errorf("time moved from %d to %d after stop", stopped, got)
	}
}

func TestSessionScriptSyntaxError(t *testing.T) {
	s := newTestSession(t, nil)
	if err := s.StartScript(context.Background(), "wait(", false); err == nil {
		t.Fatal("expected syntax error")
	}
	if s.ScriptState() != script.Stopped {
		t.Errorf("state = %v, want STOPPED", s.ScriptState())
	}
}

func TestSessionToggleScript(t *testing.T) {
	s := newTestSession(t, nil)
	src := `while true do wait(1) end`

	st, err := s.ToggleScript(context.Background(), src)
	if err != nil || st != script.Running {
		t.Fatalf("first toggle = %v, %v; want RUNNING", st, err)
	}
	st, _ = s.ToggleScript(context.Background(), src)
	if st != script.Rushing {
		t.Errorf("second toggle = %v, want RUSHING", st)
	}
	st, _ = s.ToggleScript(context.Background(), src)
	if st != script.Stopped {
		t.Errorf("third toggle = %v, want STOPPED", st)
	}
}

func TestSessionStartProgram(t *testing.T) {
	s := newTestSession(t, nil)
	err := s.StartProgram(context.Background(), true,
		script.SetVar("snailsNumber", 2),
		script.Wait(4),
	)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.WaitScript(timeout(t)); err != nil {
		t.Fatal(err)
	}
	if n, _ := s.GetVar("snailsNumber"); n != 2 {
		t.Errorf("snails = %v, want 2", n)
	}
	if got := s.State().Time; got != 4 {
		t.Errorf("time = %d, want 4", got)
	}
}

package show

import (
	"context"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/Seednode/petshow/choreo"
	"github.com/Seednode/petshow/election"
	"github.com/Seednode/petshow/protocol"
	"github.com/Seednode/petshow/relay"
	"github.com/Seednode/petshow/rig"
)

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time { return c.now }

func (c *clock) advance(d time.Duration) { c.now = c.now.Add(d) }

// shortRoutine finishes after a couple of seconds at the test frame rate.
func shortRoutine(*rand.Rand) []choreo.Step {
	return []choreo.Step{
		&choreo.Teleport{Target: choreo.V(0, 0, 0)},
		choreo.Walk(choreo.V(0, 0, 30)),
	}
}

type participant struct {
	*Orchestrator
	channel *relay.MemoryChannel
	model   *rig.Model
	sent    *[][]byte
}

type tap struct {
	relay.Channel
	sent *[][]byte
}

func (t tap) Send(ctx context.Context, data []byte) error {
	*t.sent = append(*t.sent, data)
	return t.Channel.Send(ctx, data)
}

func join(bus *relay.Bus, clk *clock, id string, routine Routine) *participant {
	ch := bus.Join()
	model := rig.NewModel()
	lib := rig.DefaultLibrary()
	sent := new([][]byte)

	o := New(tap{Channel: ch, sent: sent}, model, func() choreo.Mixer { return rig.NewMixer(lib) }, Options{
		Self:    id,
		Routine: routine,
		Rand:    rand.New(rand.NewPCG(3, 4)),
		Now:     clk.Now,
	})

	return &participant{Orchestrator: o, channel: ch, model: model, sent: sent}
}

func (p *participant) lastSent(t *testing.T) protocol.Message {
	t.Helper()

	if len(*p.sent) == 0 {
		t.Fatal("nothing sent")
	}
	msg, err := protocol.Decode((*p.sent)[len(*p.sent)-1])
	if err != nil {
		t.Fatal(err)
	}
	return msg
}

// runFor advances the clock in frame steps, beating every heartbeat interval
// and draining each participant's inbox in between.
func runFor(ctx context.Context, clk *clock, d time.Duration, elapsed *time.Duration, ps ...*participant) {
	const frame = 100 * time.Millisecond

	for end := *elapsed + d; *elapsed < end; {
		clk.advance(frame)
		*elapsed += frame

		for _, p := range ps {
			p.Drain(ctx)
			p.Tick(ctx, frame.Seconds())
		}

		if *elapsed%election.DefaultHeartbeat == 0 {
			for _, p := range ps {
				p.Heartbeat(ctx)
			}
		}

		for _, p := range ps {
			p.Drain(ctx)
		}
	}
}

func TestBootstrapFailover(t *testing.T) {
	ctx := context.Background()
	clk := &clock{now: time.Unix(1000, 0)}
	p1 := join(relay.NewBus(), clk, "p1", shortRoutine)

	var elapsed time.Duration
	runFor(ctx, clk, 9*time.Second, &elapsed, p1)

	if p1.Role() != election.Observer {
		t.Fatalf("promoted before the window expired")
	}
	if p1.model.Visible() {
		t.Error("observer should not show the character")
	}

	runFor(ctx, clk, 3*time.Second, &elapsed, p1)

	if p1.Role() != election.Driver {
		t.Fatalf("role = %s after 12s alone, want driver", p1.Role())
	}
	if p1.Sequence() == nil {
		t.Fatal("driver should be performing")
	}
	if !p1.model.Visible() {
		t.Error("driver should show the character")
	}
	if got := p1.lastSent(t); got != protocol.Notify("p1", true) {
		t.Errorf("announcement on start = %+v", got)
	}
}

func TestHandoffBetweenParticipants(t *testing.T) {
	ctx := context.Background()
	bus := relay.NewBus()
	clk := &clock{now: time.Unix(1000, 0)}
	p1 := join(bus, clk, "p1", shortRoutine)

	var elapsed time.Duration
	runFor(ctx, clk, 11*time.Second, &elapsed, p1)

	p2 := join(bus, clk, "p2", shortRoutine)
	runFor(ctx, clk, time.Second, &elapsed, p1, p2)

	if p1.Role() != election.Driver || p2.Role() != election.Observer {
		t.Fatalf("roles p1=%s p2=%s, want driver/observer", p1.Role(), p2.Role())
	}

	// p1 finishes at about 13.5s and p2 performs until about 15s.
	runFor(ctx, clk, 2*time.Second, &elapsed, p1, p2)

	if p1.Role() != election.Observer {
		t.Fatalf("p1 role = %s after finishing, want observer", p1.Role())
	}
	if p2.Role() != election.Driver {
		t.Fatalf("p2 role = %s after handoff, want driver", p2.Role())
	}
	if p1.Sequence() != nil {
		t.Error("p1 kept its sequence after handing off")
	}
	if p1.model.Visible() || !p2.model.Visible() {
		t.Errorf("visibility p1=%v p2=%v, want false/true", p1.model.Visible(), p2.model.Visible())
	}

	sawSwitch := false
	for _, data := range *p1.sent {
		if msg, _ := protocol.Decode(data); msg == protocol.Switch("p2") {
			sawSwitch = true
		}
	}
	if !sawSwitch {
		t.Error("p1 never sent the handoff")
	}
}

func TestSoloDriverKeepsPerforming(t *testing.T) {
	ctx := context.Background()
	clk := &clock{now: time.Unix(1000, 0)}
	p1 := join(relay.NewBus(), clk, "p1", shortRoutine)

	var elapsed time.Duration
	runFor(ctx, clk, 20*time.Second, &elapsed, p1)

	if p1.Role() != election.Driver {
		t.Fatalf("role = %s, want driver", p1.Role())
	}
	if p1.Performed() < 2 {
		t.Errorf("performed %d times, want the routine repeated", p1.Performed())
	}
}

func TestHandoffAddressedElsewhereIsIgnored(t *testing.T) {
	ctx := context.Background()
	clk := &clock{now: time.Unix(1000, 0)}
	p2 := join(relay.NewBus(), clk, "p2", shortRoutine)

	p2.Deliver(ctx, []byte(`{"type":"switch","id":"p3"}`))
	if p2.Role() != election.Observer {
		t.Fatal("switch addressed to p3 promoted p2")
	}

	p2.Deliver(ctx, []byte(`{"type":"switch","id":"p2"}`))
	if p2.Role() != election.Driver || p2.Sequence() == nil {
		t.Fatal("switch addressed to p2 did not promote it")
	}
}

func TestMalformedFramesAreDropped(t *testing.T) {
	ctx := context.Background()
	clk := &clock{now: time.Unix(1000, 0)}
	p := join(relay.NewBus(), clk, "p1", shortRoutine)

	for _, frame := range []string{
		`not json`,
		`{"type":"switch"}`,
		`{"type":"teleport","id":"p1"}`,
		`{"id":"p1","master":true}`,
	} {
		p.Deliver(ctx, []byte(frame))
	}

	if p.Role() != election.Observer || p.Sequence() != nil {
		t.Error("malformed frames changed state")
	}
	if !p.Election().LastDriverSeen().Equal(time.Unix(1000, 0)) {
		t.Error("malformed frames refreshed the driver sighting")
	}
}

func TestMissingClipAbortsAndRecovers(t *testing.T) {
	ctx := context.Background()
	clk := &clock{now: time.Unix(1000, 0)}
	broken := func(*rand.Rand) []choreo.Step {
		return []choreo.Step{
			&choreo.Teleport{Target: choreo.V(0, 0, 0)},
			&choreo.Clip{Name: "no such clip"},
		}
	}
	p := join(relay.NewBus(), clk, "p1", broken)

	p.Deliver(ctx, []byte(`{"type":"switch","id":"p1"}`))
	first := p.Sequence()

	p.Tick(ctx, 0.1)

	if first.Err() == nil {
		t.Fatal("expected the sequence to abort")
	}
	if p.Role() != election.Driver {
		t.Fatalf("role = %s, want driver with no peers", p.Role())
	}
	if p.Sequence() == first || p.Sequence() == nil {
		t.Error("a fresh sequence should replace the aborted one")
	}
}

func TestMissingClipStillHandsOff(t *testing.T) {
	ctx := context.Background()
	clk := &clock{now: time.Unix(1000, 0)}
	broken := func(*rand.Rand) []choreo.Step {
		return []choreo.Step{&choreo.Clip{Name: "no such clip"}}
	}
	p := join(relay.NewBus(), clk, "p1", broken)

	p.Deliver(ctx, []byte(`{"type":"notify","id":"p2","master":false}`))
	p.Deliver(ctx, []byte(`{"type":"switch","id":"p1"}`))
	p.Tick(ctx, 0.1)

	if p.Role() != election.Observer {
		t.Fatalf("role = %s, want observer after handing off", p.Role())
	}
	if got := p.lastSent(t); got != protocol.Switch("p2") {
		t.Errorf("last sent = %+v, want switch to p2", got)
	}
}

func TestEmptyRoutineRestartsOncePerTick(t *testing.T) {
	ctx := context.Background()
	clk := &clock{now: time.Unix(1000, 0)}
	empty := func(*rand.Rand) []choreo.Step { return nil }
	p := join(relay.NewBus(), clk, "p1", empty)

	p.Deliver(ctx, []byte(`{"type":"switch","id":"p1"}`))
	if p.Performed() != 1 {
		t.Fatalf("performed = %d, want 1", p.Performed())
	}

	for range 3 {
		p.Tick(ctx, 0.1)
	}

	if p.Performed() != 4 {
		t.Errorf("performed = %d, want one restart per tick", p.Performed())
	}
}

func TestDriverSilenceTriggersFailover(t *testing.T) {
	ctx := context.Background()
	bus := relay.NewBus()
	clk := &clock{now: time.Unix(1000, 0)}

	p1 := join(bus, clk, "p1", shortRoutine)
	p1.Deliver(ctx, []byte(`{"type":"switch","id":"p1"}`))
	p2 := join(bus, clk, "p2", shortRoutine)

	var elapsed time.Duration
	runFor(ctx, clk, 6*time.Second, &elapsed, p1, p2)

	if p2.Role() != election.Observer && p1.Role() != election.Observer {
		t.Fatalf("both drive: p1=%s p2=%s", p1.Role(), p2.Role())
	}

	var driver, watcher *participant
	if p1.Role() == election.Driver {
		driver, watcher = p1, p2
	} else {
		driver, watcher = p2, p1
	}

	_ = driver.channel.Close()
	silentSince := clk.Now()

	var promotedAfter time.Duration
	for i := 0; i < 200 && watcher.Role() != election.Driver; i++ {
		runFor(ctx, clk, 100*time.Millisecond, &elapsed, watcher)
		promotedAfter = clk.Now().Sub(silentSince)
	}

	if watcher.Role() != election.Driver {
		t.Fatal("watcher never took over")
	}
	if promotedAfter > election.DefaultHeartbeat+election.DefaultWindow {
		t.Errorf("took over after %s, want within %s", promotedAfter, election.DefaultHeartbeat+election.DefaultWindow)
	}
}

func TestInboxOverflowDrops(t *testing.T) {
	bus := relay.NewBus()
	clk := &clock{now: time.Unix(1000, 0)}

	ch := bus.Join()
	o := New(ch, rig.NewModel(), func() choreo.Mixer { return rig.NewMixer(rig.DefaultLibrary()) }, Options{
		Self:      "p1",
		InboxSize: 2,
		Now:       clk.Now,
	})

	sender := bus.Join()
	for range 5 {
		_ = sender.Send(context.Background(), []byte(`{"type":"notify","id":"p2","master":false}`))
	}

	if n := o.Drain(context.Background()); n != 2 {
		t.Errorf("drained %d frames, want 2", n)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := join(relay.NewBus(), &clock{now: time.Now()}, "p1", shortRoutine)

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

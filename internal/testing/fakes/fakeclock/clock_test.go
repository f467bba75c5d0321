package fakeclock

import (
	"context"
	"testing"
	"time"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestSleepAdvancesWithoutBlocking(t *testing.T) {
	c := New(epoch)

	start := time.Now()
	for _, d := range []time.Duration{10 * time.Second, 2 * time.Second} {
		if err := c.Sleep(context.Background(), d); err != nil {
			t.Fatalf("Sleep(%s) = %v", d, err)
		}
	}
	if time.Since(start) > time.Second {
		t.Error("Sleep blocked")
	}

	if got, want := c.Now(), epoch.Add(12*time.Second); !got.Equal(want) {
		t.Errorf("Now() = %v, want %v", got, want)
	}
	if got := c.Slept(); len(got) != 2 || got[0] != 10*time.Second || got[1] != 2*time.Second {
		t.Errorf("Slept() = %v", got)
	}
}

func TestSleepCanceled(t *testing.T) {
	c := New(epoch)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := c.Sleep(ctx, time.Minute); err != context.Canceled {
		t.Fatalf("Sleep() = %v, want context.Canceled", err)
	}
	if !c.Now().Equal(epoch) {
		t.Error("canceled Sleep moved the clock")
	}
	if len(c.Slept()) != 1 {
		t.Error("canceled Sleep was not recorded")
	}
}

func TestAdvance(t *testing.T) {
	c := New(epoch)
	c.Advance(90 * time.Minute)
	if got := c.Now().Sub(epoch); got != 90*time.Minute {
		t.Errorf("elapsed = %s", got)
	}
}

func TestSlept_ReturnsCopy(t *testing.T) {
	c := New(epoch)
	_ = c.Sleep(context.Background(), time.Second)
	got := c.Slept()
	got[0] = 0
	if c.Slept()[0] != time.Second {
		t.Error("Slept() exposed internal slice")
	}
}

package statsdb

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rjboer/GoTRX/trx"
)

func TestRecorderRoundTrip(t *testing.T) {
	ctx := context.Background()
	rec, err := Open(filepath.Join(t.TempDir(), "stats.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rec.Close()

	params := &trx.DriverParams{RFPortCount: 1, SampleRate: []trx.Fraction{{Num: 15_360_000, Den: 1}}}
	session, err := rec.StartSession(ctx, "loopback", params)
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	if _, err := rec.Latest(ctx, session); !errors.Is(err, ErrNoSamples) {
		t.Fatalf("expected ErrNoSamples, got %v", err)
	}

	base := time.Unix(1_700_000_000, 0)
	for i := 0; i < 3; i++ {
		s := trx.Statistics{TXUnderflowCount: int64(i), RXOverflowCount: int64(2 * i)}
		if err := rec.Record(ctx, session, base.Add(time.Duration(i)*time.Second), s); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}

	latest, err := rec.Latest(ctx, session)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest.Stats.TXUnderflowCount != 2 || latest.Stats.RXOverflowCount != 4 || !latest.RecordedAt.Equal(base.Add(2*time.Second)) {
		t.Fatalf("unexpected latest %+v", latest)
	}

	samples, err := rec.Samples(ctx, session)
	if err != nil {
		t.Fatalf("samples: %v", err)
	}
	if len(samples) != 3 || samples[0].Stats.TXUnderflowCount != 0 || samples[2].Session != session {
		t.Fatalf("unexpected samples %+v", samples)
	}

	other, err := rec.StartSession(ctx, "null", nil)
	if err != nil {
		t.Fatalf("second session: %v", err)
	}
	if other == session {
		t.Fatalf("session ids must differ")
	}
	if samples, _ := rec.Samples(ctx, other); len(samples) != 0 {
		t.Fatalf("sessions leak samples: %+v", samples)
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

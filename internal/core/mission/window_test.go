package mission

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{in: "12h", want: 12 * time.Hour},
		{in: "1d", want: 24 * time.Hour},
		{in: "7d", want: 7 * 24 * time.Hour},
		{in: "2w", want: 14 * 24 * time.Hour},
		{in: "1m", want: 30 * 24 * time.Hour},
		{in: "1y", want: 365 * 24 * time.Hour},
		{in: "", wantErr: true},
		{in: "7", wantErr: true},
		{in: "d7", wantErr: true},
		{in: "7s", wantErr: true},
		{in: "-1d", wantErr: true},
		{in: "1.5d", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDuration(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestTimeWindow_Valid(t *testing.T) {
	require.NoError(t, (&TimeWindow{Duration: "7d", Sliding: true}).Valid())
	require.NoError(t, (&TimeWindow{Duration: "1d", ResetTime: "06:00"}).Valid())
	require.NoError(t, (&TimeWindow{Duration: "1d", ResetTime: "23:59"}).Valid())
	require.Error(t, (&TimeWindow{Duration: "bogus"}).Valid())
	require.Error(t, (&TimeWindow{Duration: "1d", ResetTime: "24:00"}).Valid())
	require.Error(t, (&TimeWindow{Duration: "1d", ResetTime: "6am"}).Valid())
}

func TestTimeWindow_StartSliding(t *testing.T) {
	w := TimeWindow{Duration: "7d", Sliding: true}
	now := time.Date(2026, 3, 5, 15, 30, 0, 0, time.UTC)
	require.Equal(t, now.Add(-7*24*time.Hour), w.Start(now))
}

func TestTimeWindow_StartFixedDaily(t *testing.T) {
	w := TimeWindow{Duration: "1d"}
	now := time.Date(2026, 3, 5, 15, 30, 0, 0, time.UTC)
	require.Equal(t, time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC), w.Start(now))

	// Just before and just after midnight land in different periods.
	before := time.Date(2026, 3, 5, 23, 59, 59, 0, time.UTC)
	after := time.Date(2026, 3, 6, 0, 0, 0, 0, time.UTC)
	require.NotEqual(t, w.Start(before), w.Start(after))
	require.Equal(t, time.Date(2026, 3, 6, 0, 0, 0, 0, time.UTC), w.Start(after))
}

func TestTimeWindow_StartFixedResetTime(t *testing.T) {
	w := TimeWindow{Duration: "1d", ResetTime: "06:00"}

	// Before the day's reset the active period started yesterday.
	early := time.Date(2026, 3, 5, 5, 0, 0, 0, time.UTC)
	require.Equal(t, time.Date(2026, 3, 4, 6, 0, 0, 0, time.UTC), w.Start(early))

	// At/after the reset it is today's 06:00.
	late := time.Date(2026, 3, 5, 6, 0, 0, 0, time.UTC)
	require.Equal(t, time.Date(2026, 3, 5, 6, 0, 0, 0, time.UTC), w.Start(late))
}

func TestTimeWindow_StartFixedWeekly(t *testing.T) {
	w := TimeWindow{Duration: "7d"}
	dur := 7 * 24 * time.Hour
	now := time.Date(2026, 3, 5, 15, 30, 0, 0, time.UTC)

	start := w.Start(now)
	require.False(t, start.After(now))
	require.True(t, now.Before(start.Add(dur)))
	// Boundaries are spaced an exact number of periods from the epoch.
	require.Zero(t, start.Sub(time.Unix(0, 0).UTC())%dur)
	// And the boundary falls on the reset wall time.
	require.Equal(t, 0, start.Hour())
	require.Equal(t, 0, start.Minute())
}

func TestTimeWindow_PeriodStart(t *testing.T) {
	w := TimeWindow{Duration: "30d", Sliding: true}
	at := time.Date(2026, 3, 5, 18, 45, 12, 0, time.UTC)
	require.Equal(t, time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC), w.PeriodStart(at))

	shifted := TimeWindow{Duration: "30d", ResetTime: "06:00"}
	require.Equal(t, time.Date(2026, 3, 5, 6, 0, 0, 0, time.UTC), shifted.PeriodStart(at))
}

package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Clock is a wall-clock time of day, used for the workday window.
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock parses "HH:MM".
func ParseClock(s string) (Clock, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return Clock{}, fmt.Errorf("parse clock %q: %w", s, err)
	}
	return Clock{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (c Clock) on(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), c.Hour, c.Minute, 0, 0, day.Location())
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// Generator produces candidate slots for a doctor over a date range. Slot
// generation is an administrative, low-frequency operation: overlaps with
// existing slots are checked before insert, but concurrent generation for
// the same doctor is not defended against (single-writer assumption).
type Generator struct {
	store Store
	log   *zap.Logger
}

func NewGenerator(store Store, log *zap.Logger) *Generator {
	return &Generator{store: store, log: log}
}

// Generate creates back-to-back slots of fixed duration covering each
// day's working window in [from, to] and inserts them. Candidates that
// would overlap an existing slot of the doctor are skipped. The inserted
// slots are returned.
func (g *Generator) Generate(ctx context.Context, doctorID uuid.UUID, from, to time.Time, workdayStart, workdayEnd Clock, duration time.Duration) ([]TimeSlot, error) {
	if duration <= 0 {
		return nil, validationError("slot_duration", "slot_duration must be positive")
	}
	if to.Before(from) {
		return nil, validationError("date_range", "range end must not be before range start")
	}
	if !workdayStart.on(from).Before(workdayEnd.on(from)) {
		return nil, validationError("workday", "workday_end must be after workday_start")
	}

	if _, err := g.store.GetDoctor(ctx, doctorID); err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}

	rangeStart := workdayStart.on(from)
	rangeEnd := workdayEnd.on(to)
	existing, err := g.store.ListSlotsByDoctor(ctx, doctorID, rangeStart, rangeEnd)
	if err != nil {
		return nil, fmt.Errorf("list existing slots: %w", err)
	}

	var slots []TimeSlot
	skipped := 0

	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		dayEnd := workdayEnd.on(day)
		for start := workdayStart.on(day); !start.Add(duration).After(dayEnd); start = start.Add(duration) {
			end := start.Add(duration)
			if overlapsAny(existing, start, end) {
				skipped++
				continue
			}
			slots = append(slots, TimeSlot{
				ID:        uuid.New(),
				DoctorID:  doctorID,
				StartTime: start,
				EndTime:   end,
				Available: true,
				CreatedAt: time.Now().UTC(),
			})
		}
	}

	if len(slots) > 0 {
		if err := g.store.InsertSlots(ctx, slots); err != nil {
			return nil, fmt.Errorf("insert slots: %w", err)
		}
	}

	g.log.Info("generated slots",
		zap.String("doctor_id", doctorID.String()),
		zap.Int("created", len(slots)),
		zap.Int("skipped", skipped))

	return slots, nil
}

func overlapsAny(existing []TimeSlot, start, end time.Time) bool {
	for _, s := range existing {
		if s.Overlaps(start, end) {
			return true
		}
	}
	return false
}

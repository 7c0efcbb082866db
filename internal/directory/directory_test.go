package directory

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/companion/internal/apperror"
	"github.com/sakif/companion/internal/model"
)

// fakeResolver returns fixed coordinates per place id and counts calls.
type fakeResolver struct {
	coords map[string]model.Coordinates
	err    error
	delay  time.Duration
	calls  atomic.Int32
}

func (f *fakeResolver) Resolve(ctx context.Context, placeID string) (model.Coordinates, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return model.Coordinates{}, ctx.Err()
		}
	}
	if f.err != nil {
		return model.Coordinates{}, f.err
	}
	return f.coords[placeID], nil
}

var (
	fixedNow = time.Date(2026, time.October, 17, 12, 0, 0, 0, time.UTC)
	today    = model.DateOf(fixedNow)
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestDirectory(t *testing.T, opts ...Option) *Directory {
	t.Helper()
	base := []Option{WithClock(func() time.Time { return fixedNow })}
	return New(testLogger(), append(base, opts...)...)
}

func user(id int64, age int) model.User {
	return model.User{ID: id, Name: "user", Age: age, Gender: "x", Interests: []string{"hiking"}}
}

func createGroup(t *testing.T, d *Directory, locationID string, ages model.AgeRange, date model.Date, host model.User) model.Group {
	t.Helper()
	g, err := d.CreateGroup(context.Background(), NewGroup{
		LocationID:  locationID,
		Title:       "Isar BBQ",
		Description: "bring drinks",
		AgeRange:    ages,
		Date:        date,
		Host:        host,
	})
	require.NoError(t, err)
	return g
}

// =========================================================================
// CREATE
// =========================================================================

func TestCreateGroup_HostIsSoleFirstMember(t *testing.T) {
	d := newTestDirectory(t)
	host := user(1, 25)

	g := createGroup(t, d, "loc-1", model.AgeRange{Min: 20, Max: 30}, today, host)

	assert.NotEqual(t, uuid.Nil, g.ID)
	assert.Equal(t, int64(1), g.HostID)
	require.Len(t, g.Members, 1)
	assert.Equal(t, host.ID, g.Members[0].ID)
	assert.NotNil(t, g.ChatHistory)
	assert.Empty(t, g.ChatHistory)
}

func TestCreateGroup_RejectsInvertedAgeRange(t *testing.T) {
	d := newTestDirectory(t)

	_, err := d.CreateGroup(context.Background(), NewGroup{
		LocationID: "loc-1",
		AgeRange:   model.AgeRange{Min: 30, Max: 20},
		Date:       today,
		Host:       user(1, 25),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrValidation))

	_, err = d.Location(context.Background(), "loc-1")
	assert.True(t, errors.Is(err, apperror.ErrNotFound), "a rejected group must not create its location")
}

func TestCreateGroup_GeocodesOnlyNewLocations(t *testing.T) {
	res := &fakeResolver{coords: map[string]model.Coordinates{
		"marienplatz": {Lat: 48.1374, Lng: 11.5755},
	}}
	d := newTestDirectory(t, WithResolver(res))

	createGroup(t, d, "marienplatz", model.AgeRange{Min: 18, Max: 99}, today, user(1, 30))
	createGroup(t, d, "marienplatz", model.AgeRange{Min: 18, Max: 99}, today, user(2, 30))

	assert.Equal(t, int32(1), res.calls.Load())

	loc, err := d.Location(context.Background(), "marienplatz")
	require.NoError(t, err)
	assert.Equal(t, model.Coordinates{Lat: 48.1374, Lng: 11.5755}, loc.Coordinates)
	assert.Len(t, loc.Groups, 2)
}

func TestCreateGroup_FallsBackWhenGeocodingFails(t *testing.T) {
	tests := []struct {
		name     string
		resolver Resolver
	}{
		{"no resolver", nil},
		{"resolver error", &fakeResolver{err: errors.New("quota exceeded")}},
		{"resolver returns sentinel", &fakeResolver{coords: map[string]model.Coordinates{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var opts []Option
			if tt.resolver != nil {
				opts = append(opts, WithResolver(tt.resolver))
			}
			d := newTestDirectory(t, opts...)

			createGroup(t, d, "somewhere", model.AgeRange{Min: 0, Max: 99}, today, user(1, 30))

			loc, err := d.Location(context.Background(), "somewhere")
			require.NoError(t, err)
			assert.Equal(t, Fallback, loc.Coordinates)
		})
	}
}

func TestCreateGroup_GeocodeTimeoutIsBounded(t *testing.T) {
	res := &fakeResolver{delay: time.Second}
	d := newTestDirectory(t,
		WithResolver(res),
		WithConfig(Config{LockTimeout: time.Second, GeocodeTimeout: 20 * time.Millisecond}),
	)

	start := time.Now()
	createGroup(t, d, "slow-place", model.AgeRange{Min: 0, Max: 99}, today, user(1, 30))

	assert.Less(t, time.Since(start), 500*time.Millisecond)
	loc, err := d.Location(context.Background(), "slow-place")
	require.NoError(t, err)
	assert.Equal(t, Fallback, loc.Coordinates)
}

func TestCreateGroup_GeocodingDoesNotHoldTheLock(t *testing.T) {
	res := &fakeResolver{delay: 300 * time.Millisecond}
	d := newTestDirectory(t,
		WithResolver(res),
		WithConfig(Config{LockTimeout: 50 * time.Millisecond, GeocodeTimeout: time.Second}),
	)
	createGroup(t, d, "known", model.AgeRange{Min: 0, Max: 99}, today, user(1, 30))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := d.CreateGroup(context.Background(), NewGroup{
			LocationID: "brand-new",
			AgeRange:   model.AgeRange{Min: 0, Max: 99},
			Date:       today,
			Host:       user(2, 30),
		})
		assert.NoError(t, err)
	}()

	// While brand-new is being geocoded, other operations get straight in.
	time.Sleep(50 * time.Millisecond)
	_, err := d.Location(context.Background(), "known")
	assert.NoError(t, err)

	<-done
}

func TestCreateGroup_IDCollisionIsConflict(t *testing.T) {
	fixed := uuid.MustParse("7b4f0a6e-3b1e-4c43-9a53-3f2f1b0c9d11")
	d := newTestDirectory(t, WithIDGenerator(func() uuid.UUID { return fixed }))

	createGroup(t, d, "loc-1", model.AgeRange{Min: 0, Max: 99}, today, user(1, 30))

	_, err := d.CreateGroup(context.Background(), NewGroup{
		LocationID: "loc-1",
		AgeRange:   model.AgeRange{Min: 0, Max: 99},
		Date:       today,
		Host:       user(2, 30),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrConflict))

	loc, err := d.Location(context.Background(), "loc-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), loc.Groups[fixed].HostID, "the original group must be untouched")
}

// =========================================================================
// JOIN
// =========================================================================

// Scenario: host 25 creates a 20-30 group; 35 is rejected; 28 joins.
func TestJoinGroup_AgeScenario(t *testing.T) {
	d := newTestDirectory(t)
	ctx := context.Background()
	g := createGroup(t, d, "loc-1", model.AgeRange{Min: 20, Max: 30}, today, user(1, 25))

	_, err := d.JoinGroup(ctx, "loc-1", g.ID, user(2, 35))
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrIneligible))

	joined, err := d.JoinGroup(ctx, "loc-1", g.ID, user(3, 28))
	require.NoError(t, err)
	assert.Len(t, joined.Members, 2)
	assert.Equal(t, int64(1), joined.Members[0].ID, "host stays first")
}

func TestJoinGroup_Eligibility(t *testing.T) {
	tests := []struct {
		name    string
		age     int
		wantErr error
	}{
		{"at min", 20, nil},
		{"at max", 30, nil},
		{"inside", 25, nil},
		{"below min", 19, apperror.ErrIneligible},
		{"above max", 31, apperror.ErrIneligible},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestDirectory(t)
			g := createGroup(t, d, "loc-1", model.AgeRange{Min: 20, Max: 30}, today, user(1, 25))

			_, err := d.JoinGroup(context.Background(), "loc-1", g.ID, user(2, tt.age))
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestJoinGroup_TwiceIsConflictAndLeavesMembersUnchanged(t *testing.T) {
	d := newTestDirectory(t)
	ctx := context.Background()
	g := createGroup(t, d, "loc-1", model.AgeRange{Min: 18, Max: 40}, today, user(1, 25))

	_, err := d.JoinGroup(ctx, "loc-1", g.ID, user(2, 30))
	require.NoError(t, err)

	_, err = d.JoinGroup(ctx, "loc-1", g.ID, user(2, 30))
	assert.True(t, errors.Is(err, apperror.ErrConflict))

	_, err = d.JoinGroup(ctx, "loc-1", g.ID, user(1, 25))
	assert.True(t, errors.Is(err, apperror.ErrConflict), "the host cannot join again")

	after, err := d.Group(ctx, "loc-1", g.ID)
	require.NoError(t, err)
	assert.Len(t, after.Members, 2)
}

func TestJoinGroup_NotFound(t *testing.T) {
	d := newTestDirectory(t)
	g := createGroup(t, d, "loc-1", model.AgeRange{Min: 18, Max: 40}, today, user(1, 25))

	_, err := d.JoinGroup(context.Background(), "nowhere", g.ID, user(2, 30))
	assert.True(t, errors.Is(err, apperror.ErrNotFound))

	_, err = d.JoinGroup(context.Background(), "loc-1", uuid.New(), user(2, 30))
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

func TestJoinGroup_ConcurrentJoinsNeverDuplicate(t *testing.T) {
	d := newTestDirectory(t)
	g := createGroup(t, d, "loc-1", model.AgeRange{Min: 0, Max: 99}, today, user(1, 25))

	const users = 20
	const attemptsPerUser = 5
	var wg sync.WaitGroup
	var successes atomic.Int32

	for u := int64(2); u < 2+users; u++ {
		for a := 0; a < attemptsPerUser; a++ {
			wg.Add(1)
			go func(id int64) {
				defer wg.Done()
				if _, err := d.JoinGroup(context.Background(), "loc-1", g.ID, user(id, 30)); err == nil {
					successes.Add(1)
				}
			}(u)
		}
	}
	wg.Wait()

	assert.Equal(t, int32(users), successes.Load())

	after, err := d.Group(context.Background(), "loc-1", g.ID)
	require.NoError(t, err)
	assert.Len(t, after.Members, users+1)

	seen := map[int64]bool{}
	for _, m := range after.Members {
		assert.False(t, seen[m.ID], "duplicate member %d", m.ID)
		seen[m.ID] = true
	}
}

// =========================================================================
// DELETE
// =========================================================================

func TestDeleteGroup(t *testing.T) {
	d := newTestDirectory(t)
	ctx := context.Background()
	g := createGroup(t, d, "loc-1", model.AgeRange{Min: 0, Max: 99}, today, user(1, 25))

	require.NoError(t, d.DeleteGroup(ctx, "loc-1", g.ID))

	err := d.DeleteGroup(ctx, "loc-1", g.ID)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))

	err = d.DeleteGroup(ctx, "nowhere", g.ID)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))

	loc, err := d.Location(ctx, "loc-1")
	require.NoError(t, err, "locations outlive their groups")
	assert.Empty(t, loc.Groups)
}

// =========================================================================
// LOCK
// =========================================================================

func TestAcquire_TimesOutWhenLockIsHeld(t *testing.T) {
	d := newTestDirectory(t, WithConfig(Config{LockTimeout: 20 * time.Millisecond}))

	require.NoError(t, d.acquire(context.Background()))
	defer d.release()

	_, err := d.Location(context.Background(), "loc-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrUnavailable))
}

func TestAcquire_CancelledContext(t *testing.T) {
	d := newTestDirectory(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.Locations(ctx, []string{"a"})
	assert.True(t, errors.Is(err, apperror.ErrUnavailable))
}

// =========================================================================
// LISTING
// =========================================================================

func TestLocations_SkipsUnknownIDs(t *testing.T) {
	d := newTestDirectory(t)
	createGroup(t, d, "a", model.AgeRange{Min: 0, Max: 99}, today, user(1, 25))
	createGroup(t, d, "b", model.AgeRange{Min: 0, Max: 99}, today, user(1, 25))

	locs, err := d.Locations(context.Background(), []string{"b", "missing", "a"})
	require.NoError(t, err)
	require.Len(t, locs, 2)
	assert.Equal(t, "b", locs[0].ID)
	assert.Equal(t, "a", locs[1].ID)
}

func TestLocation_SnapshotIsDetached(t *testing.T) {
	d := newTestDirectory(t)
	ctx := context.Background()
	g := createGroup(t, d, "loc-1", model.AgeRange{Min: 0, Max: 99}, today, user(1, 25))

	snap, err := d.Location(ctx, "loc-1")
	require.NoError(t, err)

	_, err = d.JoinGroup(ctx, "loc-1", g.ID, user(2, 30))
	require.NoError(t, err)
	require.NoError(t, d.DeleteGroup(ctx, "loc-1", g.ID))

	assert.Len(t, snap.Groups[g.ID].Members, 1, "snapshot must not see later changes")
}

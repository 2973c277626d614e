package models

import (
	"encoding/json"
	"fmt"
	"time"
)

var _ Model = (*CachedWorkout)(nil)

// CachedWorkout is a workout snapshot stored locally for offline listing.
type CachedWorkout struct {
	id        string
	owner     string
	fetchedAt time.Time
	workout   Workout
}

// NewCachedWorkout wraps w as fetched now by owner.
func NewCachedWorkout(owner string, w Workout) *CachedWorkout {
	return &CachedWorkout{owner: owner, fetchedAt: time.Now().UTC(), workout: w}
}

// RestoreCachedWorkout rebuilds a row read from the database.
func RestoreCachedWorkout(id, owner string, fetchedAt time.Time, payload []byte) (*CachedWorkout, error) {
	var w Workout
	if err := json.Unmarshal(payload, &w); err != nil {
		return nil, fmt.Errorf("failed to decode cached workout %s: %w", id, err)
	}
	return &CachedWorkout{id: id, owner: owner, fetchedAt: fetchedAt, workout: w}, nil
}

func (c *CachedWorkout) ID() string           { return c.id }
func (c *CachedWorkout) SetID(id string)      { c.id = id }
func (c *CachedWorkout) Owner() string        { return c.owner }
func (c *CachedWorkout) Workout() Workout     { return c.workout }
func (c *CachedWorkout) RemoteID() int64      { return c.workout.ID }
func (c *CachedWorkout) CreatedAt() time.Time { return c.fetchedAt }
func (c *CachedWorkout) UpdatedAt() time.Time { return c.fetchedAt }

// Touch replaces the snapshot and refreshes its fetch time.
func (c *CachedWorkout) Touch(w Workout) {
	c.workout = w
	c.fetchedAt = time.Now().UTC()
}

// Payload returns the JSON encoding stored in the payload column.
func (c *CachedWorkout) Payload() ([]byte, error) {
	return json.Marshal(c.workout)
}

// Validate requires an owner and a remote id.
func (c *CachedWorkout) Validate() error {
	if c.owner == "" {
		return fmt.Errorf("cached workout requires an owner")
	}
	if c.workout.ID <= 0 {
		return fmt.Errorf("cached workout requires a remote id")
	}
	return nil
}

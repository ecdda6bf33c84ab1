package handler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEventReqValidate(t *testing.T) {
	now := time.Now().UTC()
	valid := eventReq{
		Title:    "Go Meetup",
		Venue:    "Main Hall",
		StartsAt: now.Add(24 * time.Hour),
		EndsAt:   now.Add(26 * time.Hour),
	}

	t.Run("ok", func(t *testing.T) {
		r := valid
		assert.Empty(t, r.validate())
	})

	t.Run("trims title and venue", func(t *testing.T) {
		r := valid
		r.Title, r.Venue = "  Go Meetup  ", " Main Hall "
		assert.Empty(t, r.validate())
		assert.Equal(t, "Go Meetup", r.Title)
		assert.Equal(t, "Main Hall", r.Venue)
	})

	t.Run("missing title", func(t *testing.T) {
		r := valid
		r.Title = "   "
		assert.Equal(t, "title is required", r.validate())
	})

	t.Run("missing venue", func(t *testing.T) {
		r := valid
		r.Venue = ""
		assert.Equal(t, "venue is required", r.validate())
	})

	t.Run("missing times", func(t *testing.T) {
		r := valid
		r.StartsAt = time.Time{}
		assert.Equal(t, "starts_at and ends_at are required", r.validate())
	})

	t.Run("ends before starts", func(t *testing.T) {
		r := valid
		r.EndsAt = r.StartsAt.Add(-time.Hour)
		assert.Equal(t, "ends_at must be after starts_at", r.validate())
	})

	t.Run("zero-length event", func(t *testing.T) {
		r := valid
		r.EndsAt = r.StartsAt
		assert.Equal(t, "ends_at must be after starts_at", r.validate())
	})
}

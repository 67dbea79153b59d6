/*
dto.go - Request/response data structures

PURPOSE:
  JSON shapes exposed over the HTTP API, kept separate from domain types
  so the wire format can evolve independently. Conversion helpers live
  next to the shapes they produce.
*/
package api

import (
	"fmt"
	"strings"
	"time"

	"github.com/warp/toil-engine/engine"
	"github.com/warp/toil-engine/schedule"
)

// =============================================================================
// RESPONSES
// =============================================================================

type SummaryDTO struct {
	UserID    string  `json:"userId"`
	MonthYear string  `json:"monthYear"`
	Accrued   float64 `json:"accrued"`
	Used      float64 `json:"used"`
	Remaining float64 `json:"remaining"`
}

type RecordDTO struct {
	ID        string  `json:"id"`
	UserID    string  `json:"userId"`
	Date      string  `json:"date"`
	Hours     float64 `json:"hours"`
	MonthYear string  `json:"monthYear"`
	EntryID   string  `json:"entryId"`
	Status    string  `json:"status"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toSummaryDTO(s engine.Summary) SummaryDTO {
	return SummaryDTO{
		UserID:    string(s.UserID),
		MonthYear: string(s.MonthYear),
		Accrued:   s.Accrued.Float64(),
		Used:      s.Used.Float64(),
		Remaining: s.Remaining.Float64(),
	}
}

func toRecordDTOs(recs []engine.Record) []RecordDTO {
	out := make([]RecordDTO, 0, len(recs))
	for _, r := range recs {
		out = append(out, RecordDTO{
			ID:        string(r.ID),
			UserID:    string(r.UserID),
			Date:      r.Date.Format("2006-01-02"),
			Hours:     r.Hours.Float64(),
			MonthYear: string(r.MonthYear),
			EntryID:   r.EntryID,
			Status:    string(r.Status),
		})
	}
	return out
}

// =============================================================================
// REQUESTS
// =============================================================================

type RecalculateRequest struct {
	Date string `json:"date"` // "2006-01-02"
}

type UsageRequest struct {
	Date    string  `json:"date"`
	Hours   float64 `json:"hours"`
	EntryID string  `json:"entryId"`
}

type EntriesRequest struct {
	Entries []EntryDTO `json:"entries"`
}

type EntryDTO struct {
	ID          string  `json:"id"`
	Date        string  `json:"date"`
	Hours       float64 `json:"hours"`
	StartTime   string  `json:"startTime,omitempty"`
	EndTime     string  `json:"endTime,omitempty"`
	JobNumber   string  `json:"jobNumber,omitempty"`
	Description string  `json:"description"`
	Project     string  `json:"project"`
	Synthetic   bool    `json:"synthetic"`
}

type ScheduleDTO struct {
	ID    string             `json:"id"`
	Name  string             `json:"name"`
	Weeks map[string]WeekDTO `json:"weeks"` // keys "1", "2"
}

type WeekDTO struct {
	Days    map[string]DaySlotDTO `json:"days"` // keys "monday".."sunday"
	RDODays []string              `json:"rdoDays"`
}

type DaySlotDTO struct {
	StartTime    string `json:"startTime"`
	EndTime      string `json:"endTime"`
	LunchMinutes int    `json:"lunchMinutes"`
	SmokoMinutes int    `json:"smokoMinutes"`
}

type HolidayDTO struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Date   string `json:"date"`
	Region string `json:"region"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

func (d ScheduleDTO) ToDomain() (*schedule.WorkSchedule, error) {
	ws := &schedule.WorkSchedule{
		ID:    d.ID,
		Name:  d.Name,
		Weeks: make(map[int]schedule.WeekPattern),
	}
	for weekKey, week := range d.Weeks {
		var idx int
		switch weekKey {
		case "1":
			idx = 1
		case "2":
			idx = 2
		default:
			return nil, fmt.Errorf("invalid fortnight week %q", weekKey)
		}

		pattern := schedule.WeekPattern{
			Days:    make(map[time.Weekday]schedule.DaySlot),
			RDODays: make(map[time.Weekday]bool),
		}
		for name, slot := range week.Days {
			wd, ok := weekdayNames[strings.ToLower(name)]
			if !ok {
				return nil, fmt.Errorf("invalid weekday %q", name)
			}
			pattern.Days[wd] = schedule.DaySlot{
				StartTime: slot.StartTime,
				EndTime:   slot.EndTime,
				Breaks: schedule.Breaks{
					LunchMinutes: slot.LunchMinutes,
					SmokoMinutes: slot.SmokoMinutes,
				},
			}
		}
		for _, name := range week.RDODays {
			wd, ok := weekdayNames[strings.ToLower(name)]
			if !ok {
				return nil, fmt.Errorf("invalid RDO weekday %q", name)
			}
			pattern.RDODays[wd] = true
			// RDO designation wins over any slot for the same weekday.
			delete(pattern.Days, wd)
		}
		ws.Weeks[idx] = pattern
	}
	return ws, nil
}

func (d HolidayDTO) ToDomain() (schedule.Holiday, error) {
	day, err := time.Parse("2006-01-02", d.Date)
	if err != nil {
		return schedule.Holiday{}, fmt.Errorf("invalid holiday date %q: %w", d.Date, err)
	}
	return schedule.Holiday{ID: d.ID, Name: d.Name, Date: day, Region: d.Region}, nil
}

func (d EntryDTO) ToDomain(userID engine.UserID) (engine.TimeEntry, error) {
	day, err := time.Parse("2006-01-02", d.Date)
	if err != nil {
		return engine.TimeEntry{}, fmt.Errorf("invalid entry date %q: %w", d.Date, err)
	}
	return engine.TimeEntry{
		ID:          d.ID,
		UserID:      userID,
		Date:        day,
		Hours:       d.Hours,
		StartTime:   d.StartTime,
		EndTime:     d.EndTime,
		JobNumber:   d.JobNumber,
		Description: d.Description,
		Project:     d.Project,
		Synthetic:   d.Synthetic,
	}, nil
}

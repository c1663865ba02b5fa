/*
Copyright 2026 The FactoryOps Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package rules

import (
	"fmt"
	"time"

	"github.com/factoryops/factoryops/pkg/models"
)

// Scheduled reports whether a rule's schedule admits evaluation at ts, which
// is interpreted in loc (the factory timezone).
//
// A malformed schedule config returns admit=true together with the parse
// error: alerting fails open so a bad config can never silently disable a
// rule. The caller logs the error.
func Scheduled(rule *models.Rule, ts time.Time, loc *time.Location) (bool, error) {
	local := ts.In(loc)

	switch rule.ScheduleType {
	case models.ScheduleAlways, "":
		return true, nil

	case models.ScheduleTimeWindow:
		admit, err := inTimeWindow(rule.ScheduleConfig, local)
		if err != nil {
			return true, err
		}
		return admit, nil

	case models.ScheduleDateRange:
		admit, err := inDateRange(rule.ScheduleConfig, local)
		if err != nil {
			return true, err
		}
		return admit, nil

	default:
		return true, fmt.Errorf("unknown schedule type %q", rule.ScheduleType)
	}
}

// inTimeWindow admits iff the local weekday is in config.days (1=Mon..7=Sun,
// all days when absent) and start_time <= time-of-day <= end_time.
func inTimeWindow(config models.JSONMap, local time.Time) (bool, error) {
	if config == nil {
		return false, fmt.Errorf("time_window schedule without config")
	}

	if days, ok := config["days"]; ok {
		list, ok := days.([]any)
		if !ok {
			return false, fmt.Errorf("schedule days is not a list")
		}
		weekday := int(local.Weekday())
		if weekday == 0 {
			weekday = 7 // Sunday
		}
		found := false
		for _, d := range list {
			n, ok := d.(float64)
			if !ok {
				return false, fmt.Errorf("schedule day %v is not a number", d)
			}
			if int(n) == weekday {
				found = true
				break
			}
		}
		if !found {
			return false, nil
		}
	}

	start, err := minuteOfDay(config, "start_time")
	if err != nil {
		return false, err
	}
	end, err := minuteOfDay(config, "end_time")
	if err != nil {
		return false, err
	}
	now := local.Hour()*60 + local.Minute()
	return start <= now && now <= end, nil
}

// inDateRange admits iff start_date <= local date <= end_date.
func inDateRange(config models.JSONMap, local time.Time) (bool, error) {
	if config == nil {
		return false, fmt.Errorf("date_range schedule without config")
	}
	start, err := configDate(config, "start_date", local.Location())
	if err != nil {
		return false, err
	}
	end, err := configDate(config, "end_date", local.Location())
	if err != nil {
		return false, err
	}
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, local.Location())
	return !day.Before(start) && !day.After(end), nil
}

func minuteOfDay(config models.JSONMap, key string) (int, error) {
	raw, ok := config[key].(string)
	if !ok {
		return 0, fmt.Errorf("schedule %s missing or not a string", key)
	}
	t, err := time.Parse("15:04", raw)
	if err != nil {
		return 0, fmt.Errorf("schedule %s %q: %w", key, raw, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

func configDate(config models.JSONMap, key string, loc *time.Location) (time.Time, error) {
	raw, ok := config[key].(string)
	if !ok {
		return time.Time{}, fmt.Errorf("schedule %s missing or not a string", key)
	}
	t, err := time.ParseInLocation("2006-01-02", raw, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("schedule %s %q: %w", key, raw, err)
	}
	return t, nil
}

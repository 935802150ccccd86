package api

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/mmguero-android/timelimit-android-sub001/internal/db"
	"github.com/mmguero-android/timelimit-android-sub001/internal/models"
)

// versionOf derives the version token of a family from its content, so a
// client holding the token of identical data is never sent it again.
func versionOf(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("hash family: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8]), nil
}

// snapshot collects every family whose server version differs from the
// token the client reported. Families the client is current on are omitted.
type snapshot struct {
	tx     *db.Tx
	client models.ClientDataStatus
	out    models.ServerDataStatus
}

func buildSnapshot(tx *db.Tx, client models.ClientDataStatus) (*models.ServerDataStatus, error) {
	s := &snapshot{tx: tx, client: client}
	steps := []func() error{s.users, s.devices, s.categories}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, err
		}
	}
	return &s.out, nil
}

func (s *snapshot) users() error {
	users, err := s.tx.ListUsers()
	if err != nil {
		return err
	}
	logins, err := s.tx.ListUserLimitLoginCategories()
	if err != nil {
		return err
	}
	loginOf := make(map[string]string, len(logins))
	for _, l := range logins {
		loginOf[l.UserID] = l.CategoryID
	}

	data := make([]models.ServerUser, len(users))
	for i, u := range users {
		data[i] = models.ServerUser{User: u, LimitLoginCategory: loginOf[u.ID]}
	}
	version, err := versionOf(data)
	if err != nil {
		return err
	}
	if version != s.client.Users {
		s.out.UserList = &models.ServerUserList{Version: version, Data: data}
	}
	return nil
}

func (s *snapshot) devices() error {
	devices, err := s.tx.ListDevices()
	if err != nil {
		return err
	}
	version, err := versionOf(devices)
	if err != nil {
		return err
	}
	if version != s.client.Devices {
		s.out.DeviceList = &models.ServerDeviceList{Version: version, Data: devices}
	}

	for _, d := range devices {
		apps, err := s.tx.ListInstalledApps(d.ID)
		if err != nil {
			return err
		}
		activities, err := s.tx.ListAppActivities(d.ID)
		if err != nil {
			return err
		}
		version, err := versionOf([]any{apps, activities})
		if err != nil {
			return err
		}
		if version == s.client.Apps[d.ID] {
			continue
		}
		s.out.InstalledApps = append(s.out.InstalledApps, models.ServerInstalledAppsData{
			DeviceID:   d.ID,
			Version:    version,
			Apps:       apps,
			Activities: activities,
		})
	}
	return nil
}

func (s *snapshot) categories() error {
	categories, err := s.tx.ListCategories()
	if err != nil {
		return err
	}

	known := make(map[string]bool, len(categories))
	for _, c := range categories {
		known[c.ID] = true
		have := s.client.Categories[c.ID]

		if version, err := versionOf(c); err != nil {
			return err
		} else if version != have.Base {
			s.out.CategoryBase = append(s.out.CategoryBase, models.ServerCategoryBaseData{Version: version, Category: c})
		}

		apps, err := s.tx.ListCategoryApps(c.ID)
		if err != nil {
			return err
		}
		if version, err := versionOf(apps); err != nil {
			return err
		} else if version != have.AssignedApps {
			s.out.CategoryAssignedApps = append(s.out.CategoryAssignedApps, models.ServerCategoryAssignedApps{
				CategoryID: c.ID, Version: version, PackageNames: apps,
			})
		}

		rules, err := s.tx.ListRules(c.ID)
		if err != nil {
			return err
		}
		if version, err := versionOf(rules); err != nil {
			return err
		} else if version != have.Rules {
			s.out.CategoryTimeLimitRules = append(s.out.CategoryTimeLimitRules, models.ServerTimeLimitRules{
				CategoryID: c.ID, Version: version, Rules: rules,
			})
		}

		used, err := s.tx.ListUsedTimes(c.ID)
		if err != nil {
			return err
		}
		sessions, err := s.tx.ListSessionDurations(c.ID)
		if err != nil {
			return err
		}
		if version, err := versionOf([]any{used, sessions}); err != nil {
			return err
		} else if version != have.UsedTime {
			s.out.CategoryUsedTimes = append(s.out.CategoryUsedTimes, models.ServerUsedTimeData{
				CategoryID: c.ID, Version: version, UsedTimes: used, SessionDurations: sessions,
			})
		}
	}

	for id := range s.client.Categories {
		if !known[id] {
			s.out.RemovedCategories = append(s.out.RemovedCategories, id)
		}
	}
	slices.Sort(s.out.RemovedCategories)
	return nil
}

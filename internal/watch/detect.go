package watch

import (
	"streamwatch/internal/config"
)

// ChangeKind tags one detected transition.
type ChangeKind int

const (
	ChangeOnline ChangeKind = iota
	ChangeOffline
	ChangeTitle
	ChangeCategory
	ChangeTitleAndCategory
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeOnline:
		return "online"
	case ChangeOffline:
		return "offline"
	case ChangeTitle:
		return "title_change"
	case ChangeCategory:
		return "category_change"
	case ChangeTitleAndCategory:
		return "title_and_category_change"
	default:
		return "unknown"
	}
}

// Change is one detected transition between two snapshots.
//
// OldValue/NewValue carry the single changed value for ChangeTitle and
// ChangeCategory; the merged ChangeTitleAndCategory carries both pairs in the
// dedicated fields instead.
type Change struct {
	Kind  ChangeKind
	Login string

	OldValue string
	NewValue string

	OldTitle string
	NewTitle string
	OldGame  string
	NewGame  string

	// StreamStartedAt is the just-ended stream's start time (offline only).
	StreamStartedAt string

	// VOD enrichment, best-effort (offline only).
	VODURL          string
	VODThumbnailURL string

	State StreamerState
}

// Diff compares two snapshots and returns the detected transitions.
//
// A nil old snapshot is the baseline case: no events, regardless of liveness.
// The poller separately synthesizes an online event for a live baseline,
// because a first-ever observation of a live streamer is indistinguishable
// from "just went live" for notification purposes.
func Diff(old *StreamerState, next StreamerState) []Change {
	if old == nil {
		return nil
	}

	var changes []Change

	if !old.IsLive && next.IsLive {
		changes = append(changes, Change{
			Kind:  ChangeOnline,
			Login: next.Login,
			State: next,
		})
	}

	if old.IsLive && !next.IsLive {
		changes = append(changes, Change{
			Kind:            ChangeOffline,
			Login:           next.Login,
			StreamStartedAt: old.StartedAt,
			State:           next,
		})
	}

	// Empty new titles are transient API gaps, not real changes.
	if old.Title != next.Title && next.Title != "" {
		changes = append(changes, Change{
			Kind:     ChangeTitle,
			Login:    next.Login,
			OldValue: old.Title,
			NewValue: next.Title,
			State:    next,
		})
	}

	// Unconditional: an empty category id is a valid "no category" state and
	// its transition is meaningful.
	if old.GameID != next.GameID {
		changes = append(changes, Change{
			Kind:     ChangeCategory,
			Login:    next.Login,
			OldValue: old.GameName,
			NewValue: next.GameName,
			State:    next,
		})
	}

	return changes
}

// mergeChanges folds a co-occurring title change and category change into a
// single combined event; the rest of the set passes through unchanged.
func mergeChanges(changes []Change) []Change {
	var titleChange, gameChange *Change
	for i := range changes {
		switch changes[i].Kind {
		case ChangeTitle:
			titleChange = &changes[i]
		case ChangeCategory:
			gameChange = &changes[i]
		}
	}

	if titleChange == nil || gameChange == nil {
		return changes
	}

	combined := Change{
		Kind:     ChangeTitleAndCategory,
		Login:    titleChange.Login,
		OldTitle: titleChange.OldValue,
		NewTitle: titleChange.NewValue,
		OldGame:  gameChange.OldValue,
		NewGame:  gameChange.NewValue,
		State:    titleChange.State,
	}

	var result []Change
	for _, c := range changes {
		if c.Kind != ChangeTitle && c.Kind != ChangeCategory {
			result = append(result, c)
		}
	}
	return append(result, combined)
}

// SinkAccepts reports whether a sink with the given interest flags wants this
// change kind. The merged kind passes when either half is enabled.
func SinkAccepts(k ChangeKind, n config.NotificationSettings) bool {
	switch k {
	case ChangeOnline:
		return n.Online
	case ChangeOffline:
		return n.Offline
	case ChangeTitle:
		return n.TitleChange
	case ChangeCategory:
		return n.CategoryChange
	case ChangeTitleAndCategory:
		return n.TitleChange || n.CategoryChange
	default:
		return false
	}
}

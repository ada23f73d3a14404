package watch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"streamwatch/internal/config"
	"streamwatch/internal/twitch"
	"streamwatch/pkg/logx"
)

// ErrRestartRequested is returned by Run when the resource guard tripped and
// every tracked streamer is offline, so the process can be restarted without
// cutting a live notification sequence short.
var ErrRestartRequested = errors.New("restart requested by resource guard")

// Dispatcher delivers one streamer's detected changes to its sinks and
// returns once every delivery has settled.
type Dispatcher interface {
	Dispatch(ctx context.Context, changes []Change, streamer config.StreamerConfig)
}

// Poller drives the poll cycle: fetch live status, fetch offline channel
// metadata, diff snapshots, merge correlated events, enrich offline events
// with VOD data, dispatch, and update the state store.
type Poller struct {
	api        *twitch.Client
	cfg        *config.Config
	dispatcher Dispatcher
	log        logx.Logger
	guard      *Guard

	store *StateStore
	users map[string]twitch.User

	spec      config.ParsedSpec
	cronSched cron.Schedule
	loc       *time.Location
}

type PollerOption func(*Poller)

// WithGuard attaches the optional memory resource guard.
func WithGuard(g *Guard) PollerOption {
	return func(p *Poller) { p.guard = g }
}

func NewPoller(api *twitch.Client, cfg *config.Config, dispatcher Dispatcher, log logx.Logger, opts ...PollerOption) (*Poller, error) {
	p := &Poller{
		api:        api,
		cfg:        cfg,
		dispatcher: dispatcher,
		log:        log,
		store:      NewStateStore(),
		users:      make(map[string]twitch.User),
		spec:       cfg.Schedule(),
		loc:        cfg.Location(),
	}
	if p.spec.Kind == config.SpecCron {
		sched, err := config.CronParser.Parse(p.spec.Cron)
		if err != nil {
			return nil, fmt.Errorf("cron schedule: %w", err)
		}
		p.cronSched = sched
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Store exposes the state cache (read-mostly; used by status reporting and tests).
func (p *Poller) Store() *StateStore { return p.store }

// Run populates the identity cache, runs one cycle immediately, then repeats
// on the configured schedule until ctx is canceled.
//
// Cancellation stops arming new cycles; an in-flight cycle always finishes so
// a webhook fan-out is never left half-sent.
func (p *Poller) Run(ctx context.Context) error {
	if err := p.initUsers(ctx); err != nil {
		return fmt.Errorf("initial identity population: %w", err)
	}

	p.log.Info("polling started",
		logx.String("schedule", p.cfg.Polling.Schedule),
		logx.Int("streamers", len(p.cfg.Streamers)))

	p.cycle(context.WithoutCancel(ctx))
	if err := p.afterCycle(); err != nil {
		return err
	}

	for {
		timer := time.NewTimer(time.Until(p.nextTick(time.Now())))
		select {
		case <-ctx.Done():
			timer.Stop()
			p.log.Info("polling stopped")
			return nil
		case <-timer.C:
			p.cycle(context.WithoutCancel(ctx))
			if err := p.afterCycle(); err != nil {
				return err
			}
		}
	}
}

// nextTick computes the next cycle time for both schedule kinds.
func (p *Poller) nextTick(now time.Time) time.Time {
	if p.cronSched != nil {
		return p.cronSched.Next(now.In(p.loc))
	}
	return now.Add(p.spec.Every)
}

// afterCycle runs the once-per-cycle resource-guard check. The restart is
// honored only when every tracked streamer is simultaneously offline.
func (p *Poller) afterCycle() error {
	p.guard.Tick()
	if p.guard.Tripped() && p.allOffline() {
		return ErrRestartRequested
	}
	return nil
}

func (p *Poller) allOffline() bool {
	for _, sc := range p.cfg.Streamers {
		st := p.store.Get(sc.Username)
		if st != nil && st.IsLive {
			return false
		}
	}
	return true
}

func (p *Poller) trackedLogins() []string {
	logins := make([]string, len(p.cfg.Streamers))
	for i, s := range p.cfg.Streamers {
		logins[i] = s.Username
	}
	return logins
}

// initUsers fetches identities for all tracked logins. Failure here is fatal:
// without the login -> id mapping no cycle can proceed. Individual unknown
// logins only warn.
func (p *Poller) initUsers(ctx context.Context) error {
	users, err := p.api.Users(ctx, p.trackedLogins())
	if err != nil {
		return err
	}
	p.users = users

	for _, s := range p.cfg.Streamers {
		if _, ok := p.users[strings.ToLower(s.Username)]; !ok {
			p.log.Warn("streamer not found on twitch", logx.String("username", s.Username))
		}
	}
	return nil
}

// cycle runs one full fetch -> diff -> dispatch -> store-update iteration.
// Batch-fetch failures abandon the cycle and leave the store untouched; the
// next tick retries from the last stored snapshots.
func (p *Poller) cycle(ctx context.Context) {
	streams, err := p.api.Streams(ctx, p.trackedLogins())
	if err != nil {
		p.log.Error("live status fetch failed, cycle abandoned", logx.Err(err))
		return
	}

	channels := map[string]twitch.Channel{}
	if offlineIDs := p.collectOfflineUserIDs(streams); len(offlineIDs) > 0 {
		channels, err = p.api.Channels(ctx, offlineIDs)
		if err != nil {
			p.log.Error("channel metadata fetch failed, cycle abandoned", logx.Err(err))
			return
		}
	}

	for _, sc := range p.cfg.Streamers {
		p.processStreamer(ctx, sc, streams, channels)
	}
}

// collectOfflineUserIDs returns the user ids of tracked streamers that are
// not in the live set; only they need the channel metadata lookup.
func (p *Poller) collectOfflineUserIDs(streams map[string]twitch.Stream) []string {
	var ids []string
	for _, s := range p.cfg.Streamers {
		key := strings.ToLower(s.Username)
		user, ok := p.users[key]
		if !ok {
			continue
		}
		if _, live := streams[key]; !live {
			ids = append(ids, user.ID)
		}
	}
	return ids
}

// buildState merges the live-status fields (when live) or channel fields
// (when offline) into a fresh snapshot.
func buildState(user twitch.User, stream *twitch.Stream, channel *twitch.Channel) StreamerState {
	state := StreamerState{
		UserID:          user.ID,
		Login:           user.Login,
		DisplayName:     user.DisplayName,
		ProfileImageURL: user.ProfileImageURL,
	}

	if stream != nil {
		state.IsLive = true
		state.Title = stream.Title
		state.GameID = stream.GameID
		state.GameName = stream.GameName
		state.StartedAt = stream.StartedAt
		state.ThumbnailURL = stream.ThumbnailURL
		state.ViewerCount = stream.ViewerCount
	} else if channel != nil {
		state.Title = channel.Title
		state.GameID = channel.GameID
		state.GameName = channel.GameName
	}

	return state
}

func (p *Poller) processStreamer(
	ctx context.Context,
	sc config.StreamerConfig,
	streams map[string]twitch.Stream,
	channels map[string]twitch.Channel,
) {
	key := strings.ToLower(sc.Username)
	user, ok := p.users[key]
	if !ok {
		return
	}

	var streamPtr *twitch.Stream
	if s, ok := streams[key]; ok {
		streamPtr = &s
	}
	var channelPtr *twitch.Channel
	if ch, ok := channels[key]; ok {
		channelPtr = &ch
	}

	next := buildState(user, streamPtr, channelPtr)
	old := p.store.Get(key)
	baseline := old == nil

	if baseline {
		status := "offline"
		if next.IsLive {
			status = "live"
		}
		p.log.Info("baseline recorded",
			logx.String("streamer", next.DisplayName),
			logx.String("status", status),
			logx.String("category", next.GameName))
	}

	changes := Diff(old, next)

	// A live baseline is operationally "just went live".
	if baseline && next.IsLive {
		changes = append(changes, Change{
			Kind:  ChangeOnline,
			Login: next.Login,
			State: next,
		})
	}

	merged := mergeChanges(changes)
	p.attachVODInfo(ctx, merged, user.ID)

	if len(merged) > 0 {
		p.log.Info("changes detected",
			logx.String("streamer", next.DisplayName),
			logx.Int("count", len(merged)))
		p.dispatcher.Dispatch(ctx, merged, sc)
	}

	// Unconditional: the snapshot advances whether or not anything fired.
	p.store.Update(key, next)
}

// attachVODInfo enriches offline changes with the most recent archive VOD.
// Lookup failures degrade to an un-enriched event, never abort the cycle.
func (p *Poller) attachVODInfo(ctx context.Context, changes []Change, userID string) {
	for i := range changes {
		if changes[i].Kind != ChangeOffline {
			continue
		}

		vod, err := p.api.LatestVOD(ctx, userID)
		if err != nil {
			p.log.Warn("vod lookup failed", logx.Err(err))
			continue
		}
		if vod == nil {
			continue
		}

		changes[i].VODURL = vod.URL
		thumb := strings.ReplaceAll(vod.ThumbnailURL, "%{width}", config.ThumbnailWidth)
		thumb = strings.ReplaceAll(thumb, "%{height}", config.ThumbnailHeight)
		changes[i].VODThumbnailURL = thumb
	}
}

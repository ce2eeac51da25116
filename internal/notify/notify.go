// Package notify routes event announcements to output sinks.
//
// The scheduler never talks to a TTS engine or a satellite transport
// directly; it hands announcement text to this package and the wired
// sinks decide where it goes. Default sinks are no-ops so the daemon
// runs headless without stubbing.
package notify

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/malcolmhoward/dawn-sub001/internal/eventbus"
	logx "github.com/malcolmhoward/dawn-sub001/pkg/logx"
)

// Speaker voices an announcement on the local device.
type Speaker interface {
	Say(ctx context.Context, text string) error
}

// SessionSink delivers an announcement to remote satellite sessions.
// uuid selects one device; SendAll fans out to every connected session.
type SessionSink interface {
	Send(ctx context.Context, uuid, text string) error
	SendAll(ctx context.Context, text string) error
}

type NopSpeaker struct{}

func (NopSpeaker) Say(ctx context.Context, text string) error { return nil }

type NopSessionSink struct{}

func (NopSessionSink) Send(ctx context.Context, uuid, text string) error { return nil }
func (NopSessionSink) SendAll(ctx context.Context, text string) error    { return nil }

// Announcement is one outbound notification.
type Announcement struct {
	Text        string
	SourceUUID  string // route to this satellite when set
	AnnounceAll bool   // also fan out to every session
}

// Service fans announcements out to the speaker, the session sink and the
// UI event bus. Broadcast fanout is rate-limited so a burst of firing
// events cannot flood satellites.
type Service struct {
	log      logx.Logger
	speaker  Speaker
	sessions SessionSink
	bus      eventbus.Bus
	limiter  *rate.Limiter
}

func NewService(speaker Speaker, sessions SessionSink, bus eventbus.Bus, log logx.Logger) *Service {
	if speaker == nil {
		speaker = NopSpeaker{}
	}
	if sessions == nil {
		sessions = NopSessionSink{}
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		log:      log,
		speaker:  speaker,
		sessions: sessions,
		bus:      bus,
		// 3/sec with a small burst; matches the pacing satellites can absorb.
		limiter: rate.NewLimiter(rate.Every(time.Second/3), 5),
	}
}

// Announce delivers an announcement to all applicable sinks. Sink failures are logged and
// do not abort the remaining sinks; announcements are best-effort.
func (s *Service) Announce(ctx context.Context, a Announcement) {
	if a.Text == "" {
		return
	}

	if err := s.speaker.Say(ctx, a.Text); err != nil {
		s.log.Warn("local announcement failed", logx.Err(err))
	}

	if a.SourceUUID != "" {
		if err := s.sessions.Send(ctx, a.SourceUUID, a.Text); err != nil {
			s.log.Warn("satellite announcement failed",
				logx.String("uuid", a.SourceUUID), logx.Err(err))
		}
	}

	if a.AnnounceAll {
		if err := s.limiter.Wait(ctx); err == nil {
			if err := s.sessions.SendAll(ctx, a.Text); err != nil {
				s.log.Warn("broadcast announcement failed", logx.Err(err))
			}
		}
	}
}

// PublishStatus emits a status-change event for UI subscribers.
func (s *Service) PublishStatus(eventType string, data any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: eventType, Data: data})
}

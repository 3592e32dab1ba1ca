package heartbeat

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"mailbox-monitor/bus"
	"mailbox-monitor/services/config"
)

var topicConfigHeartbeat = bus.T("config", "heartbeat")

// Poster runs fn on the scheduler goroutine.
type Poster interface {
	Post(fn func()) bool
}

// Service fires Beat on a cron schedule. Beat runs on the scheduler
// goroutine with the time since the service was created.
type Service struct {
	post  Poster
	beat  func(uptime time.Duration)
	log   *slog.Logger
	start time.Time
	now   func() time.Time
}

func New(post Poster, beat func(uptime time.Duration), log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		post:  post,
		beat:  beat,
		log:   log.With("service", "heartbeat"),
		start: time.Now(),
		now:   time.Now,
	}
}

func (s *Service) tick() {
	up := s.now().Sub(s.start)
	if !s.post.Post(func() { s.beat(up) }) {
		s.log.Warn("heartbeat dropped, scheduler busy")
	}
}

// Run schedules beats until ctx is cancelled. A retained config/heartbeat
// message replaces the schedule; an invalid one keeps the current schedule.
func (s *Service) Run(ctx context.Context, conn *bus.Connection, schedule string) error {
	c := cron.New()
	id, err := c.AddFunc(schedule, s.tick)
	if err != nil {
		return err
	}
	c.Start()
	defer c.Stop()
	s.log.Info("heartbeat scheduled", "schedule", schedule)

	cfgSub := conn.Subscribe(topicConfigHeartbeat)
	defer conn.Unsubscribe(cfgSub)

	for {
		select {
		case <-ctx.Done():
			s.log.Info("heartbeat service stopping")
			return nil
		case msg := <-cfgSub.Channel():
			hc, ok := msg.Payload.(config.HeartbeatConfig)
			if !ok || hc.Schedule == "" || hc.Schedule == schedule {
				continue
			}
			nid, err := c.AddFunc(hc.Schedule, s.tick)
			if err != nil {
				s.log.Warn("bad heartbeat schedule", "schedule", hc.Schedule, "err", err)
				continue
			}
			c.Remove(id)
			id, schedule = nid, hc.Schedule
			s.log.Info("heartbeat rescheduled", "schedule", schedule)
		}
	}
}

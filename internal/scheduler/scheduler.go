package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"BollWatch/internal/model"
	"BollWatch/internal/notifier"
	"BollWatch/internal/scanner"
	"BollWatch/internal/store"

	"github.com/robfig/cron/v3"
)

// Scheduler fires the daily scan and serves the chat commands.
type Scheduler struct {
	Cron        *cron.Cron
	Scanner     *scanner.Scanner
	Store       store.Store
	Credentials scanner.CredentialSource
	Ctx         context.Context

	mu      sync.Mutex
	spec    string
	entryID cron.EntryID
}

// NewScheduler creates a new Scheduler. Cron expressions carry a seconds
// field and are evaluated in loc.
func NewScheduler(ctx context.Context, sc *scanner.Scanner, st store.Store, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		Cron:    cron.New(cron.WithSeconds(), cron.WithLocation(loc)),
		Scanner: sc,
		Store:   st,
		Ctx:     ctx,
	}
}

// Register adds the daily scan task.
func (s *Scheduler) Register(spec string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entryID != 0 {
		return fmt.Errorf("scan task already registered")
	}
	id, err := s.Cron.AddFunc(spec, s.scanTask)
	if err != nil {
		return fmt.Errorf("register scan task: %w", err)
	}
	s.entryID, s.spec = id, spec
	return nil
}

// Reschedule replaces the scan schedule. An invalid spec leaves the current
// schedule in place.
func (s *Scheduler) Reschedule(spec string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, err := s.Cron.AddFunc(spec, s.scanTask)
	if err != nil {
		return fmt.Errorf("parse schedule %q: %w", spec, err)
	}
	if s.entryID != 0 {
		s.Cron.Remove(s.entryID)
	}
	log.Printf("[INFO] scan schedule changed: %q -> %q", s.spec, spec)
	s.entryID, s.spec = id, spec
	return nil
}

// Spec returns the current cron expression.
func (s *Scheduler) Spec() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spec
}

// NextRun returns the next fire time, or zero if the cron is not running.
func (s *Scheduler) NextRun() time.Time {
	s.mu.Lock()
	id := s.entryID
	s.mu.Unlock()
	if id == 0 {
		return time.Time{}
	}
	return s.Cron.Entry(id).Next
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	log.Printf("[INFO] scheduler started (%s, next run %s)", s.Spec(), s.NextRun().Format(time.RFC3339))
}

// Stop stops the cron scheduler and waits for a running job to return.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	log.Println("[INFO] scheduler stopped")
}

// RunNow executes the scan task immediately (RUN_ON_START).
func (s *Scheduler) RunNow() {
	s.scanTask()
}

func (s *Scheduler) scanTask() {
	log.Println("[INFO] running scheduled scan")
	if _, err := s.Scanner.Run(s.Ctx, model.TriggerScheduled); err != nil {
		if errors.Is(err, scanner.ErrAlreadyRunning) {
			log.Println("[WARN] scheduled scan skipped: a scan is already running")
			return
		}
		log.Printf("[ERROR] scheduled scan: %v", err)
	}
}

// Status collects the data for the /status reply and the status endpoint.
func (s *Scheduler) Status(ctx context.Context) notifier.StatusView {
	v := notifier.StatusView{
		State:   string(s.Scanner.State()),
		NextRun: s.NextRun(),
	}
	if r, err := s.Store.Get(ctx); err == nil {
		v.Last = r
	} else if !errors.Is(err, store.ErrNotFound) {
		log.Printf("[WARN] read latest report: %v", err)
	}
	if s.Credentials != nil {
		c := s.Credentials.Current()
		v.CredentialVersion = c.Version
		v.CredentialExpires = c.ExpiresAt
	}
	return v
}

// HandleCommand processes a user command and returns a reply.
func (s *Scheduler) HandleCommand(command string) string {
	command = strings.ToLower(strings.TrimSpace(command))
	if i := strings.IndexByte(command, '@'); i > 0 {
		command = command[:i]
	}
	switch command {
	case "立即扫描", "/scan":
		if err := s.Scanner.Trigger(model.TriggerManual); err != nil {
			if errors.Is(err, scanner.ErrAlreadyRunning) {
				return "⏳ 扫描正在进行中，请稍后再试"
			}
			return fmt.Sprintf("❌ 无法启动扫描: %v", err)
		}
		return "🚀 已开始扫描，完成后将发送报告"
	case "查看报告", "/report":
		r, err := s.Store.Get(s.Ctx)
		if errors.Is(err, store.ErrNotFound) {
			return "暂无扫描结果"
		}
		if err != nil {
			return fmt.Sprintf("❌ 读取报告失败: %v", err)
		}
		return notifier.FormatReport(r)
	case "查看状态", "/status":
		return notifier.FormatStatus(s.Status(s.Ctx))
	default:
		return "可用命令:\n• /scan 立即扫描\n• /report 查看报告\n• /status 查看状态"
	}
}

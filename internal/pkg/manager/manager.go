package manager

import (
	"sync"

	"github.com/gofiber/fiber/v2/log"

	"github.com/VeloBillHQ/VeloBill/internal/pkg/analytics"
	"github.com/VeloBillHQ/VeloBill/internal/pkg/codequeue"
	"github.com/VeloBillHQ/VeloBill/internal/pkg/database"
	"github.com/VeloBillHQ/VeloBill/internal/pkg/mail"
	"github.com/VeloBillHQ/VeloBill/internal/pkg/payments"
	"github.com/VeloBillHQ/VeloBill/internal/pkg/reminder"
	"github.com/VeloBillHQ/VeloBill/internal/pkg/scheduler"
	"github.com/VeloBillHQ/VeloBill/internal/pkg/workflow"
)

// Manager owns the background machinery: the queue consumer, the
// debounce scheduler dispatcher, the reminder sender and the analytics
// flusher. One instance per process.
type Manager struct {
	consumer  *codequeue.Consumer
	scheduler *scheduler.Scheduler
	reminders *reminder.Sender
	analytics *analytics.Tracker
	payments  *payments.Service

	mu      sync.Mutex
	running bool
}

var (
	instance *Manager
	once     sync.Once
)

// GetManager returns the process-wide manager, building it on first use
func GetManager() *Manager {
	once.Do(func() {
		instance = newManager()
	})
	return instance
}

func newManager() *Manager {
	db := database.GetDB()
	mailer := mail.NewSMTPMailerFromEnv()
	tracker := analytics.NewTracker(db)

	pipeline := workflow.NewCodeEvaluationPipeline(db, workflow.NewHeuristicSummaryGenerator(), mailer)
	sched := scheduler.NewScheduler(pipeline)
	reminders := reminder.NewSender(db, mailer, tracker)

	return &Manager{
		consumer:  codequeue.NewConsumer(sched, codequeue.NewCodeStore(db)),
		scheduler: sched,
		reminders: reminders,
		analytics: tracker,
		payments:  payments.NewServiceFromDB(db).WithHooks(reminders, tracker, mailer),
	}
}

// Start brings up all background components
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	log.Info("[Manager] Starting background components")
	m.scheduler.Start()
	m.consumer.Start()
	m.reminders.Start()
	m.analytics.Start()
	m.running = true
}

// Stop shuts the components down in dependency order: no new intake,
// then the dispatcher, then the senders and the final counter flush.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[Manager] Stopping background components")
	m.consumer.Stop()
	m.scheduler.Stop()
	m.reminders.Stop()
	m.analytics.Stop()
	m.running = false
}

// IsRunning returns whether the manager has been started
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Status reports the run state of each component
func (m *Manager) Status() map[string]bool {
	return map[string]bool{
		"consumer":  m.consumer.IsRunning(),
		"scheduler": m.scheduler.IsRunning(),
		"reminders": m.reminders.IsRunning(),
		"analytics": m.analytics.IsRunning(),
	}
}

// PaymentService returns the reconciler with its post-commit hooks wired
func (m *Manager) PaymentService() *payments.Service {
	return m.payments
}

// Reminders returns the reminder sender for request-side scheduling
func (m *Manager) Reminders() *reminder.Sender {
	return m.reminders
}

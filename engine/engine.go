package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/mohitkumar/flowengine/config"
	"github.com/mohitkumar/flowengine/event"
	"github.com/mohitkumar/flowengine/executor"
	"github.com/mohitkumar/flowengine/lock"
	"github.com/mohitkumar/flowengine/logger"
	"github.com/mohitkumar/flowengine/metrics"
	"github.com/mohitkumar/flowengine/model"
	"github.com/mohitkumar/flowengine/parser"
	"github.com/mohitkumar/flowengine/persistence"
	"github.com/mohitkumar/flowengine/retry"
	"github.com/mohitkumar/flowengine/rule"
	"github.com/mohitkumar/flowengine/util"
	"github.com/mohitkumar/flowengine/validator"
	"go.uber.org/zap"
)

const DEFAULT_LOCK_WAIT = 10 * time.Second
const PUBLISH_RETRY_INTERVAL = 50 * time.Millisecond
const BUS_STOP_TIMEOUT = 5 * time.Second

var ErrStreamDeprecated = errors.New("flow stream is deprecated")

type Stores struct {
	Contexts    persistence.ContextRepo
	Traces      persistence.TraceRepo
	Retries     persistence.RetryRepo
	Definitions persistence.DefinitionRepo
}

// Deps are the collaborators of an engine. Stores is required, everything else falls back to an
// in-process default.
type Deps struct {
	Stores    Stores
	Locker    *lock.Locker
	Bus       *event.Bus
	Policy    retry.Policy
	Executors *executor.Registry
	Evaluator rule.Evaluator
	Validator *validator.Validator
	Metrics   metrics.Metrics
	// LockWait bounds how long advancement waits for a node lease.
	LockWait        time.Duration
	PublishAttempts int
}

type advanceTask struct {
	StreamID string
	NodeID   string
}

func (t advanceTask) key() string {
	return t.StreamID + "/" + t.NodeID
}

type Engine struct {
	conf            config.EngineConfig
	stores          Stores
	locker          *lock.Locker
	bus             *event.Bus
	ownsBus         bool
	policy          retry.Policy
	executors       *executor.Registry
	evaluator       rule.Evaluator
	validator       *validator.Validator
	metrics         metrics.Metrics
	publishers      *Registry
	lockWait        time.Duration
	publishAttempts int

	pool         *util.KeyedPool[advanceTask]
	queued       sync.Map
	retryScanner *util.TickWorker
	recovery     *util.TickWorker
	wg           sync.WaitGroup
	ctx          context.Context
	cancel       context.CancelFunc
}

func New(conf config.EngineConfig, deps Deps) (*Engine, error) {
	s := deps.Stores
	if s.Contexts == nil || s.Traces == nil || s.Retries == nil || s.Definitions == nil {
		return nil, errors.New("engine needs context, trace, retry and definition stores")
	}
	m := deps.Metrics
	if m == nil {
		m = metrics.Noop{}
	}
	e := &Engine{
		conf:            conf,
		stores:          s,
		locker:          deps.Locker,
		bus:             deps.Bus,
		policy:          deps.Policy,
		executors:       deps.Executors,
		evaluator:       deps.Evaluator,
		validator:       deps.Validator,
		metrics:         m,
		publishers:      NewRegistry(m),
		lockWait:        deps.LockWait,
		publishAttempts: deps.PublishAttempts,
	}
	if e.locker == nil {
		e.locker = lock.NewLocker(lock.NewMemoryProvider(), time.Minute, m)
	}
	if e.bus == nil {
		e.bus = event.NewBus(config.BusConfig{}, m)
		e.ownsBus = true
	}
	if e.policy == nil {
		e.policy = retry.NewExponential(time.Second, time.Minute, 2)
	}
	if e.executors == nil {
		e.executors = executor.NewRegistry(executorConfig(conf))
	}
	if e.evaluator == nil {
		e.evaluator = rule.NewJsEvaluator()
	}
	if e.validator == nil {
		e.validator = validator.New()
	}
	if e.lockWait <= 0 {
		e.lockWait = DEFAULT_LOCK_WAIT
	}
	if e.publishAttempts < 1 {
		e.publishAttempts = 1
	}
	e.ctx, e.cancel = context.WithCancel(context.Background())
	e.pool = util.NewKeyedPool("advance", conf.AdvanceWorkers, conf.AdvanceQueueSize, advanceTask.key, e.advance, &e.wg)
	e.retryScanner = util.NewTickWorker("retry-scanner", interval(conf.RetryScanInterval, time.Second), e.scanRetries, &e.wg)
	e.recovery = util.NewTickWorker("recovery", interval(conf.RecoveryInterval, 10*time.Second), e.recover, &e.wg)
	return e, nil
}

func executorConfig(conf config.EngineConfig) executor.Config {
	ec := executor.DefaultConfig()
	if conf.HttpCallTimeout > 0 {
		ec.HttpTimeout = conf.HttpCallTimeout
	}
	if conf.ScriptTimeout > 0 {
		ec.ScriptTimeout = conf.ScriptTimeout
	}
	if conf.RemoteCallTimeout > 0 {
		ec.RemoteTimeout = conf.RemoteCallTimeout
	}
	return ec
}

func interval(d time.Duration, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

func (e *Engine) Start(ctx context.Context) error {
	e.ctx, e.cancel = context.WithCancel(ctx)
	if e.ownsBus {
		if err := e.bus.Start(e.ctx); err != nil {
			return err
		}
	}
	e.pool.Start()
	e.retryScanner.Start()
	e.recovery.Start()
	logger.Info("flow engine started", zap.Int("advanceWorkers", e.conf.AdvanceWorkers))
	return nil
}

// Stop abandons queued advancement; the recovery sweep of the next run picks it up again.
func (e *Engine) Stop() {
	e.cancel()
	e.retryScanner.Stop()
	e.recovery.Stop()
	e.pool.Stop()
	e.wg.Wait()
	if e.ownsBus {
		if err := e.bus.Stop(BUS_STOP_TIMEOUT); err != nil {
			logger.Error("error stopping event bus", zap.Error(err))
		}
	}
	e.publishers.Clear()
	logger.Info("flow engine stopped")
}

func (e *Engine) Publishers() *Registry {
	return e.publishers
}

func (e *Engine) Executors() *executor.Registry {
	return e.executors
}

// waitPolicy is built per call, back-off state is not shareable.
func (e *Engine) waitPolicy() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond
	b.MaxElapsedTime = e.lockWait
	return b
}

// Deploy stores a definition payload. An active version is immutable, deploying over it fails.
func (e *Engine) Deploy(ctx context.Context, raw []byte) (*model.FlowDefinition, error) {
	def, err := parser.Parse(raw)
	if err != nil {
		return nil, err
	}
	if err := e.validator.Validate(def); err != nil {
		return nil, err
	}
	streamID := def.StreamID()
	existing, err := e.definition(ctx, streamID)
	if err == nil && existing.Status == model.DEFINITION_ACTIVE {
		return nil, fmt.Errorf("%s: %w", streamID, ErrAlreadyActive)
	}
	if err != nil && !errors.Is(err, ErrStreamNotFound) {
		return nil, err
	}
	if err := e.stores.Definitions.Save(ctx, streamID, raw); err != nil {
		return nil, err
	}
	e.publishers.Remove(streamID)
	logger.Info("flow deployed", zap.String("stream", streamID), zap.String("status", string(def.Status)))
	return def, nil
}

func (e *Engine) DeployYAML(ctx context.Context, raw []byte) (*model.FlowDefinition, error) {
	asJson, err := parser.YAMLToJSON(raw)
	if err != nil {
		return nil, err
	}
	return e.Deploy(ctx, asJson)
}

// Deprecate closes a version to new traces. Traces already running finish normally.
func (e *Engine) Deprecate(ctx context.Context, streamID string) error {
	raw, err := e.stores.Definitions.Get(ctx, streamID)
	if errors.Is(err, persistence.ErrNotFound) {
		return fmt.Errorf("%s: %w", streamID, ErrStreamNotFound)
	}
	if err != nil {
		return err
	}
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}
	payload["status"] = string(model.DEFINITION_DEPRECATED)
	updated, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if err := e.stores.Definitions.Save(ctx, streamID, updated); err != nil {
		return err
	}
	e.publishers.Remove(streamID)
	return nil
}

func (e *Engine) Undeploy(ctx context.Context, streamID string) error {
	if _, err := e.stores.Definitions.Get(ctx, streamID); err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return fmt.Errorf("%s: %w", streamID, ErrStreamNotFound)
		}
		return err
	}
	if err := e.stores.Definitions.Delete(ctx, streamID); err != nil {
		return err
	}
	e.publishers.Remove(streamID)
	logger.Info("flow undeployed", zap.String("stream", streamID))
	return nil
}

func (e *Engine) definition(ctx context.Context, streamID string) (*model.FlowDefinition, error) {
	raw, err := e.stores.Definitions.Get(ctx, streamID)
	if errors.Is(err, persistence.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", streamID, ErrStreamNotFound)
	}
	if err != nil {
		return nil, err
	}
	return parser.Parse(raw)
}

// publisher returns the live publisher of a stream, building it from the stored definition on
// first use. The caller holds a use on it until Release.
func (e *Engine) publisher(ctx context.Context, streamID string) (*Publisher, error) {
	return e.publishers.Acquire(streamID, func() (*Publisher, error) {
		def, err := e.definition(ctx, streamID)
		if err != nil {
			return nil, err
		}
		return NewPublisher(def, e.executors)
	})
}

// Submit starts one trace carrying every data unit. Each unit gets its own context at the start
// node. With no data a single empty unit is used.
func (e *Engine) Submit(ctx context.Context, streamID string, data ...*model.FlowData) (string, error) {
	pub, err := e.publisher(ctx, streamID)
	if err != nil {
		return "", err
	}
	defer pub.Release()
	def := pub.Definition()
	if def.Status == model.DEFINITION_DEPRECATED {
		return "", fmt.Errorf("%s: %w", streamID, ErrStreamDeprecated)
	}
	start := def.StartNodes()[0]
	if len(data) == 0 {
		data = []*model.FlowData{model.NewFlowData(nil)}
	}

	now := time.Now().UTC()
	traceID := uuid.NewString()
	contexts := make([]*model.FlowContext, 0, len(data))
	for i, d := range data {
		if d == nil {
			d = model.NewFlowData(nil)
		}
		contexts = append(contexts, &model.FlowContext{
			ID:        uuid.NewString(),
			TraceID:   traceID,
			StreamID:  streamID,
			NodeID:    start.ID,
			Index:     i,
			Data:      *d.Clone(),
			Status:    model.CONTEXT_PENDING,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
	trace := &model.FlowTrace{
		ID:          traceID,
		StreamID:    streamID,
		Status:      model.TRACE_RUNNING,
		ContextPool: model.ContextIDs(contexts),
		Operator:    data[0].Operator,
		StartTime:   now,
		UpdatedAt:   now,
	}
	if err := e.stores.Traces.BatchCreate(ctx, []*model.FlowTrace{trace}); err != nil {
		return "", err
	}
	if err := e.stores.Contexts.BatchCreate(ctx, contexts); err != nil {
		if derr := e.stores.Traces.DeleteByIDs(ctx, []string{traceID}); derr != nil {
			logger.Error("error removing trace of failed submit", zap.String("trace", traceID), zap.Error(derr))
		}
		return "", err
	}
	logger.Debug("trace submitted", zap.String("stream", streamID), zap.String("trace", traceID), zap.Int("contexts", len(contexts)))
	e.schedule(streamID, start.ID)
	return traceID, nil
}

// Terminate stops the traces. Their pending contexts are archived when their node next advances.
func (e *Engine) Terminate(ctx context.Context, traceIDs []string) error {
	traces, err := e.stores.Traces.FindByIDs(ctx, traceIDs)
	if err != nil {
		return err
	}
	for _, t := range traces {
		err := e.withTrace(ctx, t.StreamID, t.ID, func(ctx context.Context, trace *model.FlowTrace) error {
			if trace.IsFinished() {
				return nil
			}
			return e.stores.Traces.UpdateStatus(ctx, []string{trace.ID}, model.TRACE_TERMINATED)
		})
		if err != nil {
			return err
		}
		logger.Info("trace terminated", zap.String("stream", t.StreamID), zap.String("trace", t.ID))
	}
	return nil
}

// Cleanup deletes traces together with their contexts and retry records.
func (e *Engine) Cleanup(ctx context.Context, traceIDs []string) error {
	contexts, err := e.stores.Contexts.FindByTraceIDs(ctx, traceIDs)
	if err != nil {
		return err
	}
	if len(contexts) > 0 {
		if err := e.stores.Retries.Delete(ctx, model.ContextIDs(contexts)); err != nil {
			return err
		}
	}
	if err := e.stores.Contexts.DeleteByTraceIDs(ctx, traceIDs); err != nil {
		return err
	}
	return e.stores.Traces.DeleteByIDs(ctx, traceIDs)
}

func (e *Engine) Trace(ctx context.Context, traceID string) (*model.FlowTrace, error) {
	return e.stores.Traces.Find(ctx, traceID)
}

func (e *Engine) Contexts(ctx context.Context, traceID string) ([]*model.FlowContext, error) {
	return e.stores.Contexts.FindByTraceIDs(ctx, []string{traceID})
}

// RunningTraces pages through the running traces, oldest first.
func (e *Engine) RunningTraces(ctx context.Context, offset int, limit int) ([]*model.FlowTrace, error) {
	return e.TracesByStatus(ctx, model.TRACE_RUNNING, offset, limit)
}

// TracesByStatus pages through the traces in status, oldest first.
func (e *Engine) TracesByStatus(ctx context.Context, status model.TraceStatus, offset int, limit int) ([]*model.FlowTrace, error) {
	if err := validator.ValidateTraceStatus(status); err != nil {
		return nil, err
	}
	if err := validator.ValidatePagination(offset, limit); err != nil {
		return nil, err
	}
	traces, err := e.stores.Traces.FindByStatus(ctx, status)
	if err != nil {
		return nil, err
	}
	if offset >= len(traces) {
		return []*model.FlowTrace{}, nil
	}
	end := offset + limit
	if end > len(traces) {
		end = len(traces)
	}
	return traces[offset:end], nil
}

// schedule queues advancement of a node. A node already waiting in the queue is not queued twice.
func (e *Engine) schedule(streamID string, nodeID string) {
	task := advanceTask{StreamID: streamID, NodeID: nodeID}
	if _, queued := e.queued.LoadOrStore(task.key(), struct{}{}); queued {
		return
	}
	if err := e.pool.Submit(task); err != nil {
		e.queued.Delete(task.key())
		logger.Warn("advancement queue full, leaving node to recovery", zap.String("stream", streamID), zap.String("node", nodeID), zap.Error(err))
	}
}

// publish retries while the bus is at capacity, then sheds the event.
func (e *Engine) publish(ev event.Event) {
	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(PUBLISH_RETRY_INTERVAL), uint64(e.publishAttempts-1))
	err := backoff.Retry(func() error {
		err := e.bus.Publish(ev)
		var capacityErr *event.CapacityError
		if err != nil && !errors.As(err, &capacityErr) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(policy, e.ctx))
	if err != nil {
		logger.Error("dropping event", zap.String("type", string(ev.Type)), zap.String("stream", ev.StreamID),
			zap.String("node", ev.NodeID), zap.Int("contexts", len(ev.Contexts)), zap.Error(err))
	}
}

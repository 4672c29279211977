package routing

import (
	"context"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"innerchat/models"
)

// HealthChecker probes every deployment on an interval and updates its status.
type HealthChecker struct {
	router   *Router
	interval time.Duration
	timeout  time.Duration

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	done     chan struct{}
}

func NewHealthChecker(router *Router, interval, timeout time.Duration) *HealthChecker {
	return &HealthChecker{
		router:   router,
		interval: interval,
		timeout:  timeout,
	}
}

func (hc *HealthChecker) Start() {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	if hc.running {
		return
	}
	hc.running = true
	hc.stopChan = make(chan struct{})
	hc.done = make(chan struct{})

	go hc.run(hc.stopChan, hc.done)
}

// Stop halts the loop and waits for an in-flight round to finish.
func (hc *HealthChecker) Stop() {
	hc.mu.Lock()
	if !hc.running {
		hc.mu.Unlock()
		return
	}
	hc.running = false
	stop, done := hc.stopChan, hc.done
	hc.mu.Unlock()

	close(stop)
	<-done
}

func (hc *HealthChecker) run(stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(hc.interval)
	defer ticker.Stop()

	hc.CheckAll(context.Background())

	for {
		select {
		case <-ticker.C:
			hc.CheckAll(context.Background())
		case <-stop:
			return
		}
	}
}

// CheckAll probes all deployments concurrently and returns when every probe
// has finished.
func (hc *HealthChecker) CheckAll(ctx context.Context) {
	hc.router.mu.RLock()
	deployments := make([]*models.Deployment, 0, len(hc.router.deployments))
	for _, d := range hc.router.deployments {
		deployments = append(deployments, d)
	}
	hc.router.mu.RUnlock()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, deployment := range deployments {
		d := deployment
		g.Go(func() error {
			hc.checkDeployment(gctx, d)
			return nil
		})
	}
	_ = g.Wait()
}

func (hc *HealthChecker) checkDeployment(ctx context.Context, deployment *models.Deployment) {
	ctx, cancel := context.WithTimeout(ctx, hc.timeout)
	defer cancel()

	provider, exists := hc.router.Provider(deployment.Provider)
	if !exists {
		hc.updateDeploymentHealth(deployment, false, "provider not found", 0)
		return
	}

	start := time.Now()
	err := provider.HealthCheck(ctx, deployment)
	responseTime := time.Since(start)

	if err != nil {
		hc.updateDeploymentHealth(deployment, false, err.Error(), responseTime)
		log.Printf("[Health] Check failed for %s: %v", deployment.ID, err)
		return
	}
	hc.updateDeploymentHealth(deployment, true, "", responseTime)
}

func (hc *HealthChecker) updateDeploymentHealth(deployment *models.Deployment, healthy bool, errorMsg string, responseTime time.Duration) {
	hc.router.mu.Lock()
	defer hc.router.mu.Unlock()

	deployment.Status.LastHealthCheck = time.Now()
	deployment.Status.Healthy = healthy

	if healthy {
		deployment.Status.Available = true
		deployment.Status.ConsecutiveFails = 0
		deployment.Status.ErrorMessage = ""
		deployment.Status.ResponseTime = responseTime
		observeLatency(deployment, responseTime)
		return
	}

	deployment.Status.ConsecutiveFails++
	deployment.Status.ErrorMessage = errorMsg
	if deployment.Status.ConsecutiveFails >= 3 {
		deployment.Status.Available = false
	}
}

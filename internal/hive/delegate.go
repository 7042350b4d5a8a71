package hive

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/ShayCichocki/waggle/pkg/models"
)

// workOutcome carries the drone work result across the completion channel.
type workOutcome struct {
	result string
	err    error
}

// ExecuteA2A runs one agent-to-agent delegation: it resolves the target
// princess and drone, marks the princess busy, invokes the drone work
// function under the request's deadline, and builds the response.
//
// The princess returns to idle on every path, including failure and timeout.
// Drone errors and panics become a failed response rather than an error
// return; the error return is reserved for malformed requests.
func (h *Hive) ExecuteA2A(ctx context.Context, req *models.DelegationRequest) (*models.DelegationResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("nil delegation request")
	}
	if req.TaskID == "" {
		return nil, fmt.Errorf("delegation request has no task id")
	}

	target := req.Target
	if target == "" {
		target = h.QueenToPrincess(req.Category)
	}

	droneID := ""
	if req.Session != nil {
		droneID = req.Session.DroneID
	}
	if droneID == "" {
		droneID = h.PrincessToDrone(target, req.Category)
	}

	p := h.princessFor(target)

	// One active delegation per princess.
	p.serial.Lock()
	defer p.serial.Unlock()

	p.setState(models.PrincessBusy)
	defer p.setState(models.PrincessIdle)

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = h.defaultTimeout
	}
	workCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	log.Printf("[hive] %s delegating task %s to %s (category=%s)", target, req.TaskID, droneID, req.Category)
	if req.Session != nil {
		req.Session.Append("princess", fmt.Sprintf("delegating task %s to %s", req.TaskID, droneID))
	}

	start := time.Now()
	done := make(chan workOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- workOutcome{err: fmt.Errorf("drone panicked: %v", r)}
			}
		}()
		result, err := h.work(workCtx, req)
		done <- workOutcome{result: result, err: err}
	}()

	resp := &models.DelegationResponse{
		TaskID: req.TaskID,
		Drone:  droneID,
	}

	select {
	case <-workCtx.Done():
		resp.Elapsed = time.Since(start)
		if errors.Is(workCtx.Err(), context.DeadlineExceeded) {
			resp.Status = models.DelegationTimeout
			resp.Error = fmt.Sprintf("delegation timed out after %s", timeout)
		} else {
			resp.Status = models.DelegationFailed
			resp.Error = "delegation canceled"
		}
		log.Printf("[hive] task %s on %s: %s after %s", req.TaskID, target, resp.Status, resp.Elapsed)
		// The drone goroutine may still be running; it is not safe to touch
		// the session here.
		return resp, nil

	case out := <-done:
		resp.Elapsed = time.Since(start)
		if out.err != nil {
			resp.Status = models.DelegationFailed
			resp.Error = out.err.Error()
			log.Printf("[hive] task %s on %s failed: %v", req.TaskID, target, out.err)
		} else {
			resp.Status = models.DelegationCompleted
			resp.Result = out.result
		}
		if req.Session != nil {
			req.Session.Append("drone", fmt.Sprintf("task %s %s", req.TaskID, resp.Status))
		}
		return resp, nil
	}
}

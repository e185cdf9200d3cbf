package usecase

import (
	"go.uber.org/zap"

	"whisperdesk/internal/domain"
	"whisperdesk/internal/ports"
	"whisperdesk/internal/transcript"
)

func (c *JobController) run(active *job) {
	defer c.wg.Done()

	pumpProgress(active, c.markers, c.events, c.cfg.RelayLogs, c.log)
	waitErr := active.session.Wait()

	state, code, detail, response := c.conclude(active, waitErr)
	active.finish(state, detail, c.now())
	defer active.cancel()
	defer close(active.done)

	if state == domain.JobStateCompleted {
		c.log.Info("transcription completed", zap.String("job", active.id), zap.String("result", response.JSONFile))
		c.events.JobCompleted(active.id, response)
		return
	}

	c.log.Warn("transcription ended",
		zap.String("job", active.id),
		zap.String("state", string(state)),
		zap.String("code", string(code)),
		zap.String("detail", detail),
	)
	c.events.JobFailed(active.id, code, detail)
}

func (c *JobController) conclude(active *job, waitErr error) (domain.JobState, domain.ErrorCode, string, transcript.Response) {
	if active.wasCancelled() {
		return domain.JobStateCancelled, domain.ErrorCodeCancelled, "transcription cancelled", transcript.Response{}
	}

	if waitErr != nil {
		detail := waitErr.Error()
		if detail == "" {
			detail = active.session.StderrTail()
		}
		return domain.JobStateFailed, domain.ErrorCodeScriptFailed, detail, transcript.Response{}
	}

	resultFile := active.result()
	t, err := transcript.Load(resultFile)
	if err != nil {
		return domain.JobStateFailed, domain.ErrorCodeResultInvalid, err.Error(), transcript.Response{}
	}
	response, err := transcript.NewResponse(t, active.workspace.Dir, resultFile)
	if err != nil {
		return domain.JobStateFailed, domain.ErrorCodeResultInvalid, err.Error(), transcript.Response{}
	}
	return domain.JobStateCompleted, "", "", response
}

// pumpProgress drains stdout, relaying recognised markers until the
// script closes its output.
func pumpProgress(active *job, markers ports.MarkerMatcher, events ports.EventSink, relayLogs bool, log *zap.Logger) {
	for line := range active.session.Lines() {
		if relayLogs {
			events.JobLog(active.id, line)
		}
		marker, ok := markers.Match(line)
		if !ok {
			continue
		}
		progress := active.advance(marker)
		log.Debug("pipeline stage",
			zap.String("job", active.id),
			zap.String("stage", string(progress.Stage)),
			zap.Int("percent", progress.Percent),
		)
		events.JobProgress(progress)
	}
}

package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"scoutline.dev/orchestrator/internal/batch"
	"scoutline.dev/orchestrator/internal/httpapi"
	"scoutline.dev/orchestrator/internal/model"
)

type stubWorkflowRunner struct {
	runFn func(ctx context.Context, threadID, userRequest string) (model.State, error)
}

func (s *stubWorkflowRunner) Run(ctx context.Context, threadID, userRequest string) (model.State, error) {
	return s.runFn(ctx, threadID, userRequest)
}

var _ = Describe("ExecuteHandler", func() {
	var (
		router  *gin.Engine
		runner  *stubWorkflowRunner
	)

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		router = gin.New()
		runner = &stubWorkflowRunner{}
		h := httpapi.NewExecuteHandler(runner, nil, batch.NewWebhookSender(nil, 1, 0, 0))
		router.POST("/execute/manual", h.Manual)
	})

	It("runs synchronously and returns the report when no callback_url is given", func() {
		runner.runFn = func(_ context.Context, threadID, userRequest string) (model.State, error) {
			state := model.NewState(threadID, userRequest)
			state.Write.Sections = []string{"## Summary\nfindings"}
			state.Scope.StrategySlug = "news/daily"
			return state, nil
		}

		body, _ := json.Marshal(map[string]string{"research_topic": "AI regulation"})
		req := httptest.NewRequest(http.MethodPost, "/execute/manual", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		Expect(w.Code).To(Equal(http.StatusOK))
		var resp map[string]any
		Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
		Expect(resp["status"]).To(Equal("completed"))
	})

	It("returns 422 with a structured error when the workflow fails", func() {
		runner.runFn = func(context.Context, string, string) (model.State, error) {
			return model.State{}, errors.New("scope classification failed")
		}

		body, _ := json.Marshal(map[string]string{"research_topic": "AI regulation"})
		req := httptest.NewRequest(http.MethodPost, "/execute/manual", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		Expect(w.Code).To(Equal(http.StatusUnprocessableEntity))
		var resp map[string]any
		Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
		Expect(resp["status"]).To(Equal("failed"))
	})

	It("rejects a request missing research_topic", func() {
		req := httptest.NewRequest(http.MethodPost, "/execute/manual", bytes.NewBufferString(`{}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		Expect(w.Code).To(Equal(http.StatusBadRequest))
	})
})

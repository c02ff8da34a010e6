package model_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gopkg.in/yaml.v3"

	"scoutline.dev/orchestrator/internal/model"
)

func TestModel(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "model suite")
}

var _ = Describe("ToolStep unmarshaling", func() {
	It("decodes a legacy step (name/params) from YAML as StepLegacy", func() {
		var step model.ToolStep
		err := yaml.Unmarshal([]byte(`
name: sonar_search
params:
  query: widgets news
`), &step)

		Expect(err).NotTo(HaveOccurred())
		Expect(step.Kind).To(Equal(model.StepLegacy))
		Expect(step.Name).To(Equal("sonar_search"))
		Expect(step.Params["query"]).To(Equal("widgets news"))
	})

	It("decodes an extended step (use/inputs) from YAML as StepExtended", func() {
		var step model.ToolStep
		err := yaml.Unmarshal([]byte(`
use: exa.search
inputs:
  query: widgets news
llm_fill: [angle]
`), &step)

		Expect(err).NotTo(HaveOccurred())
		Expect(step.Kind).To(Equal(model.StepExtended))
		Expect(step.Use).To(Equal("exa.search"))
		Expect(step.LLMFill).To(Equal([]string{"angle"}))
	})

	It("fails when a step has neither name nor use", func() {
		var step model.ToolStep
		err := yaml.Unmarshal([]byte(`description: orphan step`), &step)
		Expect(err).To(HaveOccurred())
	})

	It("round-trips the extended form through JSON, matching the YAML result", func() {
		data := []byte(`{"use":"exa.search","inputs":{"query":"widgets"}}`)

		var step model.ToolStep
		Expect(json.Unmarshal(data, &step)).To(Succeed())
		Expect(step.Kind).To(Equal(model.StepExtended))
		Expect(step.Inputs["query"]).To(Equal("widgets"))
	})

	It("fails decoding JSON with neither name nor use", func() {
		var step model.ToolStep
		err := json.Unmarshal([]byte(`{"description":"orphan"}`), &step)
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("WorkflowError", func() {
	It("wraps and unwraps the underlying error", func() {
		cause := errors.New("boom")
		wfErr := model.NewFatalError(model.ErrConfigError, cause)

		Expect(wfErr.Retryable).To(BeFalse())
		Expect(errors.Unwrap(wfErr)).To(Equal(cause))
		Expect(wfErr.Error()).To(ContainSubstring("CONFIG_ERROR"))
		Expect(wfErr.Error()).To(ContainSubstring("boom"))
	})

	It("marks NewRetryableError as retryable", func() {
		wfErr := model.NewRetryableError(model.ErrAdapterRetryable, errors.New("timeout"))
		Expect(wfErr.Retryable).To(BeTrue())
	})
})

var _ = Describe("Evidence.Sentinel", func() {
	It("reports true for a direct LLM answer tool", func() {
		ev := model.Evidence{Tool: model.ToolExaAnswer}
		Expect(ev.Sentinel()).To(BeTrue())
	})

	It("reports false for a normal web-source tool", func() {
		ev := model.Evidence{Tool: "exa"}
		Expect(ev.Sentinel()).To(BeFalse())
	})
})

var _ = Describe("ScopeClassification.Expired", func() {
	It("is not expired immediately after creation", func() {
		c := model.ScopeClassification{CreatedAt: time.Now()}
		Expect(c.Expired(24*time.Hour, time.Now())).To(BeFalse())
	})

	It("is expired once the TTL has elapsed", func() {
		created := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
		c := model.ScopeClassification{CreatedAt: created}
		now := created.Add(25 * time.Hour)
		Expect(c.Expired(24*time.Hour, now)).To(BeTrue())
	})
})

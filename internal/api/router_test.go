package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ngx-sales/decision-engine/internal/accuracy"
	"github.com/ngx-sales/decision-engine/internal/api"
	"github.com/ngx-sales/decision-engine/internal/api/handlers"
	"github.com/ngx-sales/decision-engine/internal/config"
	"github.com/ngx-sales/decision-engine/internal/decision"
	"github.com/ngx-sales/decision-engine/internal/knowledge"
	"github.com/ngx-sales/decision-engine/internal/objective"
	"github.com/ngx-sales/decision-engine/internal/pathreview"
	"github.com/ngx-sales/decision-engine/internal/predict"
	"github.com/ngx-sales/decision-engine/internal/signals"
	"github.com/ngx-sales/decision-engine/internal/store"
	"github.com/ngx-sales/decision-engine/internal/training"
	"github.com/ngx-sales/decision-engine/pkg/models"
)

// newTestServer assembles the full router over the in-memory store with
// authentication disabled.
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	t.Setenv("DECISION_DATA_DIR", "")

	st := store.NewMemoryStore()
	t.Cleanup(func() { st.Close() })

	seedModels(t, st)

	kb := knowledge.Default()
	extractor := signals.NewExtractor(signals.NewLexiconProvider(), signals.DefaultRecentWindow)
	objection := predict.NewObjectionPredictor(kb, 0)
	needs := predict.NewNeedsPredictor(kb, 0)
	conversion := predict.NewConversionPredictor()
	objectives := objective.NewManager(objective.Config{})
	adaptation := objective.NewController(objectives)

	builder, err := decision.NewBuilder(kb, 0)
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}
	paths := pathreview.NewEvaluator(extractor, objection, needs, conversion)
	scheduler := training.NewScheduler(st, training.Config{FitDuration: 5 * time.Millisecond})
	t.Cleanup(scheduler.Close)

	tracker, err := accuracy.NewTracker(context.Background(), st)
	if err != nil {
		t.Fatalf("NewTracker: %v", err)
	}

	h := handlers.New(handlers.Config{
		Store:      st,
		Extractor:  extractor,
		Objection:  objection,
		Needs:      needs,
		Conversion: conversion,
		Objectives: objectives,
		Adaptation: adaptation,
		Decisions:  builder,
		Paths:      paths,
		Scheduler:  scheduler,
		Tracker:    tracker,
	})

	cfg := &config.Config{Version: "test"}
	srv := httptest.NewServer(api.NewRouter(cfg, h))
	t.Cleanup(srv.Close)
	return srv
}

func seedModels(t *testing.T, st store.Store) {
	t.Helper()
	for name, ptype := range map[string]models.PredictionType{
		handlers.ModelObjection:  models.PredictionObjection,
		handlers.ModelNeeds:      models.PredictionNeed,
		handlers.ModelConversion: models.PredictionConversion,
	} {
		err := st.PutModel(context.Background(), &models.ModelRecord{
			Name: name, Type: ptype, Version: 1, Status: models.ModelActive,
			UpdatedAt: time.Now().UTC(),
		})
		if err != nil {
			t.Fatalf("seed model %s: %v", name, err)
		}
	}
}

func postJSON(t *testing.T, url string, body interface{}, out interface{}) int {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response from %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func salesConversation() map[string]interface{} {
	return map[string]interface{}{
		"conversation": map[string]interface{}{
			"id": "conv-e2e",
			"messages": []map[string]string{
				{"role": "user", "text": "What's the pricing? This seems expensive for our budget."},
				{"role": "assistant", "text": "Here is the cost breakdown per seat."},
				{"role": "user", "text": "Can you integrate with our CRM via API?"},
				{"role": "assistant", "text": "Yes, we ship native CRM integrations."},
			},
		},
		"profile": map[string]interface{}{
			"id":           "cust-1",
			"industry":     "retail",
			"company_size": "medium",
			"segment":      "smb",
		},
	}
}

func TestHealthAndVersion(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-Id") == "" {
		t.Error("response missing X-Request-Id")
	}

	var version struct {
		Version string `json:"version"`
	}
	vr, err := http.Get(srv.URL + "/version")
	if err != nil {
		t.Fatalf("GET /version: %v", err)
	}
	defer vr.Body.Close()
	json.NewDecoder(vr.Body).Decode(&version)
	if version.Version != "test" {
		t.Errorf("version = %q", version.Version)
	}
}

func TestPredictObjectionEndpoint(t *testing.T) {
	srv := newTestServer(t)

	var out struct {
		PredictionID string `json:"prediction_id"`
		Objections   []struct {
			Type       string  `json:"type"`
			Confidence float64 `json:"confidence"`
		} `json:"objections"`
		Confidence float64            `json:"confidence"`
		Fallback   bool               `json:"fallback"`
		Signals    map[string]float64 `json:"signals"`
	}
	status := postJSON(t, srv.URL+"/api/v1/predict/objection", salesConversation(), &out)

	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if out.PredictionID == "" {
		t.Error("no prediction id")
	}
	if out.Fallback {
		t.Error("unexpected fallback")
	}
	if len(out.Objections) == 0 {
		t.Fatal("no objections predicted for a price-heavy conversation")
	}
	if out.Objections[0].Type != "price" {
		t.Errorf("top objection = %s, want price", out.Objections[0].Type)
	}
	if out.Objections[0].Confidence < 0.3 {
		t.Errorf("price confidence = %v, want at least the inclusion threshold", out.Objections[0].Confidence)
	}
	if out.Signals["pricing_requests"] != 1 {
		t.Errorf("signals missing pricing request: %v", out.Signals["pricing_requests"])
	}
}

func TestPredictNeedsEndpoint(t *testing.T) {
	srv := newTestServer(t)

	var out struct {
		Needs []struct {
			Category   string  `json:"category"`
			Confidence float64 `json:"confidence"`
		} `json:"needs"`
		Confidence float64 `json:"confidence"`
	}
	status := postJSON(t, srv.URL+"/api/v1/predict/needs", salesConversation(), &out)

	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	found := false
	for _, n := range out.Needs {
		if n.Category == "integration" {
			found = true
		}
	}
	if !found {
		t.Errorf("needs = %+v, want integration after a CRM/API request", out.Needs)
	}
}

func TestPredictConversionEndpoint(t *testing.T) {
	srv := newTestServer(t)

	var out struct {
		Probability float64 `json:"probability"`
		Category    string  `json:"category"`
		KeyFactors  []struct {
			Name   string  `json:"name"`
			Impact float64 `json:"impact"`
		} `json:"key_factors"`
		TimeToConversion string `json:"estimated_time_to_conversion"`
	}
	status := postJSON(t, srv.URL+"/api/v1/predict/conversion", salesConversation(), &out)

	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if out.Probability < 0 || out.Probability > 1 {
		t.Errorf("probability = %v", out.Probability)
	}
	if out.Category == "" || out.TimeToConversion == "" {
		t.Error("missing category or time estimate")
	}
	if len(out.KeyFactors) == 0 {
		t.Error("no key factors")
	}
}

func TestPredictRejectsInvalidInput(t *testing.T) {
	srv := newTestServer(t)

	var out struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}

	// Missing conversation id.
	status := postJSON(t, srv.URL+"/api/v1/predict/objection", map[string]interface{}{
		"conversation": map[string]interface{}{"messages": []map[string]string{}},
		"profile":      map[string]interface{}{"id": "p1"},
	}, &out)
	if status != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", status)
	}
	if out.Code != "INVALID_REQUEST" {
		t.Errorf("code = %q, want INVALID_REQUEST", out.Code)
	}

	// Oversized conversation.
	var msgs []map[string]string
	for i := 0; i <= models.MaxConversationMessages; i++ {
		msgs = append(msgs, map[string]string{"role": "user", "text": "hello"})
	}
	status = postJSON(t, srv.URL+"/api/v1/predict/objection", map[string]interface{}{
		"conversation": map[string]interface{}{"id": "c1", "messages": msgs},
		"profile":      map[string]interface{}{"id": "p1"},
	}, &out)
	if status != http.StatusBadRequest {
		t.Errorf("oversized status = %d, want 400", status)
	}
}

func TestOptimizeAndAdaptCycle(t *testing.T) {
	srv := newTestServer(t)

	type planResponse struct {
		NextActions []struct {
			ID       string  `json:"id"`
			Category string  `json:"category"`
			Score    float64 `json:"score"`
			Priority string  `json:"priority"`
		} `json:"next_actions"`
		Objectives struct {
			NeedSatisfaction   float64 `json:"need_satisfaction"`
			ObjectionHandling  float64 `json:"objection_handling"`
			ConversionProgress float64 `json:"conversion_progress"`
		} `json:"objectives"`
		Confidence float64 `json:"confidence"`
		Adapted    bool    `json:"adapted"`
	}

	var plan planResponse
	status := postJSON(t, srv.URL+"/api/v1/decision/optimize", salesConversation(), &plan)
	if status != http.StatusOK {
		t.Fatalf("optimize status = %d", status)
	}
	if len(plan.NextActions) == 0 {
		t.Fatal("optimize produced no actions")
	}

	categories := make(map[string]bool)
	for i, a := range plan.NextActions {
		categories[a.Category] = true
		if a.Priority == "" {
			t.Errorf("action %s has no priority", a.ID)
		}
		if i > 0 && a.Score > plan.NextActions[i-1].Score {
			t.Errorf("plan not sorted at index %d", i)
		}
	}
	for _, want := range []string{"objection_response", "need_satisfaction", "exploration"} {
		if !categories[want] {
			t.Errorf("plan missing %s actions", want)
		}
	}
	sum := plan.Objectives.NeedSatisfaction + plan.Objectives.ObjectionHandling + plan.Objectives.ConversionProgress
	if sum < 1-1e-6 || sum > 1+1e-6 {
		t.Errorf("objective weights sum to %v", sum)
	}

	// Failed conversion feedback shifts weight toward conversion progress.
	adaptBody := salesConversation()
	adaptBody["feedback"] = map[string]interface{}{
		"success": false,
		"type":    "conversion_stalled",
		"details": "No next step agreed",
	}
	var adapted planResponse
	status = postJSON(t, srv.URL+"/api/v1/decision/adapt", adaptBody, &adapted)
	if status != http.StatusOK {
		t.Fatalf("adapt status = %d", status)
	}
	if !adapted.Adapted {
		t.Fatal("adapt did not report an adaptation")
	}
	if adapted.Objectives.ConversionProgress <= plan.Objectives.ConversionProgress {
		t.Errorf("conversion_progress = %v after stall feedback, want above %v",
			adapted.Objectives.ConversionProgress, plan.Objectives.ConversionProgress)
	}
	if len(adapted.NextActions) == 0 {
		t.Error("adapt produced no refreshed plan")
	}

	// Successful feedback leaves the weights alone.
	okBody := salesConversation()
	okBody["feedback"] = map[string]interface{}{"success": true}
	var unchanged planResponse
	if status := postJSON(t, srv.URL+"/api/v1/decision/adapt", okBody, &unchanged); status != http.StatusOK {
		t.Fatalf("adapt status = %d", status)
	}
	if unchanged.Adapted {
		t.Error("successful feedback reported as adaptation")
	}
	if unchanged.Objectives != adapted.Objectives {
		t.Errorf("weights moved on success: %+v vs %+v", unchanged.Objectives, adapted.Objectives)
	}
}

func adaptationRate(t *testing.T, srv *httptest.Server) float64 {
	t.Helper()
	resp, err := http.Get(srv.URL + "/api/v1/analytics")
	if err != nil {
		t.Fatalf("GET analytics: %v", err)
	}
	defer resp.Body.Close()
	var out struct {
		AdaptationRate float64 `json:"adaptation_rate"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode analytics: %v", err)
	}
	return out.AdaptationRate
}

func TestAdaptCountsOneCycle(t *testing.T) {
	srv := newTestServer(t)

	body := salesConversation()
	body["feedback"] = map[string]interface{}{
		"success": false,
		"type":    "conversion_stalled",
	}
	if status := postJSON(t, srv.URL+"/api/v1/decision/adapt", body, nil); status != http.StatusOK {
		t.Fatalf("adapt status = %d", status)
	}

	// One failed adaptation over one decision cycle.
	if rate := adaptationRate(t, srv); rate != 1.0 {
		t.Errorf("adaptation_rate = %v after a single failed adapt, want 1", rate)
	}
}

func TestAdaptHonorsCallerObjectives(t *testing.T) {
	srv := newTestServer(t)

	body := salesConversation()
	body["current_objectives"] = map[string]float64{
		"need_satisfaction":   0.2,
		"objection_handling":  0.3,
		"conversion_progress": 0.5,
	}
	body["feedback"] = map[string]interface{}{
		"success": false,
		"type":    "conversion_stalled",
	}

	var out struct {
		Objectives struct {
			NeedSatisfaction   float64 `json:"need_satisfaction"`
			ObjectionHandling  float64 `json:"objection_handling"`
			ConversionProgress float64 `json:"conversion_progress"`
		} `json:"objectives"`
		Adapted bool `json:"adapted"`
	}
	if status := postJSON(t, srv.URL+"/api/v1/decision/adapt", body, &out); status != http.StatusOK {
		t.Fatalf("adapt status = %d", status)
	}
	if !out.Adapted {
		t.Fatal("adapt did not report an adaptation")
	}

	// The caller's strategy is the base: conversion gains the 0.15 step and
	// the three renormalize over 1.15.
	if want := 0.65 / 1.15; math.Abs(out.Objectives.ConversionProgress-want) > 1e-9 {
		t.Errorf("conversion_progress = %v, want %v", out.Objectives.ConversionProgress, want)
	}
	if want := 0.2 / 1.15; math.Abs(out.Objectives.NeedSatisfaction-want) > 1e-9 {
		t.Errorf("need_satisfaction = %v, want %v", out.Objectives.NeedSatisfaction, want)
	}
	if want := 0.3 / 1.15; math.Abs(out.Objectives.ObjectionHandling-want) > 1e-9 {
		t.Errorf("objection_handling = %v, want %v", out.Objectives.ObjectionHandling, want)
	}

	// A strategy that does not sum to 1 is ignored; the response weights
	// still honor the invariant.
	bad := salesConversation()
	bad["current_objectives"] = map[string]float64{
		"need_satisfaction":   0.5,
		"objection_handling":  0.5,
		"conversion_progress": 0.5,
	}
	bad["feedback"] = map[string]interface{}{"success": true}
	if status := postJSON(t, srv.URL+"/api/v1/decision/adapt", bad, &out); status != http.StatusOK {
		t.Fatalf("adapt status = %d", status)
	}
	sum := out.Objectives.NeedSatisfaction + out.Objectives.ObjectionHandling + out.Objectives.ConversionProgress
	if sum < 1-1e-6 || sum > 1+1e-6 {
		t.Errorf("weights sum to %v after an invalid caller strategy", sum)
	}
}

func TestConversionOutcomeClosesConversation(t *testing.T) {
	srv := newTestServer(t)

	body := salesConversation()
	body["feedback"] = map[string]interface{}{
		"success": false,
		"type":    "conversion_stalled",
	}
	if status := postJSON(t, srv.URL+"/api/v1/decision/adapt", body, nil); status != http.StatusOK {
		t.Fatalf("adapt status = %d", status)
	}
	if adaptationRate(t, srv) == 0 {
		t.Fatal("no adaptation recorded before the outcome")
	}

	var out struct {
		Status string `json:"status"`
	}
	status := postJSON(t, srv.URL+"/api/v1/outcomes", map[string]interface{}{
		"conversation_id": "conv-e2e",
		"kind":            "conversion",
		"actual_value":    "closed_won",
	}, &out)
	if status != http.StatusOK {
		t.Fatalf("outcome status = %d", status)
	}
	if out.Status != "recorded" {
		t.Fatalf("outcome status = %q, want recorded", out.Status)
	}

	// The closed conversation's cycles fold out of the live rate.
	if rate := adaptationRate(t, srv); rate != 0 {
		t.Errorf("adaptation_rate = %v after the conversation closed, want 0", rate)
	}
}

func TestPrioritizeEndpoint(t *testing.T) {
	srv := newTestServer(t)

	var out struct {
		NeedSatisfaction   float64 `json:"need_satisfaction"`
		ObjectionHandling  float64 `json:"objection_handling"`
		ConversionProgress float64 `json:"conversion_progress"`
	}
	status := postJSON(t, srv.URL+"/api/v1/decision/prioritize", salesConversation(), &out)
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	sum := out.NeedSatisfaction + out.ObjectionHandling + out.ConversionProgress
	if sum < 1-1e-6 || sum > 1+1e-6 {
		t.Errorf("weights sum to %v", sum)
	}
	for _, w := range []float64{out.NeedSatisfaction, out.ObjectionHandling, out.ConversionProgress} {
		if w < 0.05-1e-9 {
			t.Errorf("weight %v below floor", w)
		}
	}
}

func TestEvaluatePathEndpoint(t *testing.T) {
	srv := newTestServer(t)

	body := salesConversation()
	body["path_actions"] = []map[string]interface{}{
		{"id": "a1", "category": "objection_response"},
		{"id": "a2", "category": "need_satisfaction"},
	}
	var out struct {
		Effectiveness   float64 `json:"effectiveness"`
		Recommendations []struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"recommendations"`
	}
	status := postJSON(t, srv.URL+"/api/v1/decision/evaluate-path", body, &out)
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if out.Effectiveness < 0 || out.Effectiveness > 1 {
		t.Errorf("effectiveness = %v", out.Effectiveness)
	}
	if out.Effectiveness < 0.5 && len(out.Recommendations) == 0 {
		t.Error("weak path with no recommendations")
	}
}

func TestOutcomeRecordingIdempotent(t *testing.T) {
	srv := newTestServer(t)

	// Serve a prediction first so the outcome can be matched against it.
	var pred struct {
		PredictionID string `json:"prediction_id"`
	}
	if status := postJSON(t, srv.URL+"/api/v1/predict/objection", salesConversation(), &pred); status != http.StatusOK {
		t.Fatalf("predict status = %d", status)
	}

	outcomeBody := map[string]interface{}{
		"conversation_id": "conv-e2e",
		"kind":            "objection",
		"actual_value":    "price",
		"prediction_id":   pred.PredictionID,
	}
	var out struct {
		ID         string `json:"id"`
		Status     string `json:"status"`
		WasCorrect bool   `json:"was_correct"`
	}
	if status := postJSON(t, srv.URL+"/api/v1/outcomes", outcomeBody, &out); status != http.StatusOK {
		t.Fatalf("outcome status = %d", status)
	}
	if out.Status != "recorded" {
		t.Errorf("status = %q, want recorded", out.Status)
	}
	if !out.WasCorrect {
		t.Error("price outcome against a price prediction marked incorrect")
	}

	// Recording again, even with a different actual, returns the stored
	// result.
	outcomeBody["actual_value"] = "trust"
	var dup struct {
		Status     string `json:"status"`
		WasCorrect bool   `json:"was_correct"`
	}
	if status := postJSON(t, srv.URL+"/api/v1/outcomes", outcomeBody, &dup); status != http.StatusOK {
		t.Fatalf("duplicate status = %d", status)
	}
	if dup.Status != "duplicate" {
		t.Errorf("status = %q, want duplicate", dup.Status)
	}
	if !dup.WasCorrect {
		t.Error("duplicate changed was_correct")
	}

	// Unknown prediction id is a 404.
	var errOut struct {
		Code string `json:"code"`
	}
	status := postJSON(t, srv.URL+"/api/v1/outcomes", map[string]interface{}{
		"conversation_id": "conv-e2e",
		"kind":            "objection",
		"actual_value":    "price",
		"prediction_id":   "does-not-exist",
	}, &errOut)
	if status != http.StatusNotFound {
		t.Errorf("status = %d, want 404", status)
	}
	if errOut.Code != "RESOURCE_NOT_FOUND" {
		t.Errorf("code = %q, want RESOURCE_NOT_FOUND", errOut.Code)
	}
}

func TestModelAndTrainingEndpoints(t *testing.T) {
	srv := newTestServer(t)

	var listed []struct {
		Name    string `json:"name"`
		Version int    `json:"version"`
		Status  string `json:"status"`
	}
	resp, err := http.Get(srv.URL + "/api/v1/models/")
	if err != nil {
		t.Fatalf("GET models: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("models status = %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&listed); err != nil {
		t.Fatalf("decode models: %v", err)
	}
	if len(listed) != 3 {
		t.Fatalf("models = %d, want the three seeded", len(listed))
	}

	// Forced training runs to completion and bumps the model version.
	var scheduled struct {
		TrainingID string `json:"training_id"`
	}
	status := postJSON(t, srv.URL+"/api/v1/training/schedule", map[string]interface{}{
		"model_name": handlers.ModelObjection,
		"force":      true,
	}, &scheduled)
	if status != http.StatusAccepted {
		t.Fatalf("schedule status = %d, want 202", status)
	}
	if scheduled.TrainingID == "" {
		t.Fatal("no training id")
	}

	deadline := time.Now().Add(2 * time.Second)
	var job struct {
		Status string `json:"status"`
	}
	for {
		jr, err := http.Get(srv.URL + "/api/v1/training/" + scheduled.TrainingID + "/")
		if err != nil {
			t.Fatalf("GET training: %v", err)
		}
		json.NewDecoder(jr.Body).Decode(&job)
		jr.Body.Close()
		if job.Status == "completed" || job.Status == "failed" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("training stuck in %q", job.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if job.Status != "completed" {
		t.Fatalf("training status = %q, want completed", job.Status)
	}

	var detail struct {
		Model struct {
			Version int `json:"version"`
		} `json:"model"`
		Versions []json.RawMessage `json:"versions"`
	}
	dr, err := http.Get(srv.URL + "/api/v1/models/" + handlers.ModelObjection + "/")
	if err != nil {
		t.Fatalf("GET model: %v", err)
	}
	defer dr.Body.Close()
	if err := json.NewDecoder(dr.Body).Decode(&detail); err != nil {
		t.Fatalf("decode model: %v", err)
	}
	if detail.Model.Version != 2 {
		t.Errorf("model version = %d, want 2 after training", detail.Model.Version)
	}
	if len(detail.Versions) != 2 {
		t.Errorf("version history = %d, want 2", len(detail.Versions))
	}
}

func TestAnalyticsEndpoint(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/analytics?kind=objection&period=7d")
	if err != nil {
		t.Fatalf("GET analytics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("analytics status = %d", resp.StatusCode)
	}

	var out struct {
		Accuracy struct {
			Kind  string `json:"kind"`
			Total int    `json:"total"`
		} `json:"accuracy"`
		AdaptationRate  float64           `json:"adaptation_rate"`
		TrainingHistory []json.RawMessage `json:"training_history"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode analytics: %v", err)
	}
	if out.Accuracy.Kind != "objection" {
		t.Errorf("accuracy kind = %q", out.Accuracy.Kind)
	}

	// Invalid kind is rejected.
	bad, err := http.Get(srv.URL + "/api/v1/analytics?kind=bogus")
	if err != nil {
		t.Fatalf("GET analytics: %v", err)
	}
	defer bad.Body.Close()
	if bad.StatusCode != http.StatusBadRequest {
		t.Errorf("bogus kind status = %d, want 400", bad.StatusCode)
	}
}

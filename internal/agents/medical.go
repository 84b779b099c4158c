package agents

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/aretw0/llmfsm/pkg/domain"
	"github.com/aretw0/llmfsm/pkg/dsl"
	"github.com/aretw0/llmfsm/pkg/registry"
	"github.com/aretw0/llmfsm/pkg/schema"
)

// Severity levels used by symptom and interaction assessments.
const (
	SeverityLow      = "low"
	SeverityModerate = "moderate"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// Context keys written by the medical agent.
const (
	EmergencyAssessmentKey = "emergency_assessment"
	PatientInfoKey         = "patient_info"
	SymptomAssessmentKey   = "symptom_assessment"
	DrugInteractionsKey    = "drug_interactions"
	TreatmentPlanKey       = "treatment_plan"
	AuditLogKey            = "audit_log"
)

type EmergencyAssessment struct {
	IsEmergency       bool   `json:"is_emergency" jsonschema:"Whether immediate emergency care is required"`
	Reasoning         string `json:"reasoning"`
	RecommendedAction string `json:"recommended_action"`
}

type PatientInfo struct {
	Name               string   `json:"name"`
	Age                int      `json:"age"`
	Gender             string   `json:"gender"`
	ExistingConditions []string `json:"existing_conditions"`
	CurrentMedications []string `json:"current_medications"`
	Allergies          []string `json:"allergies"`
}

type Symptom struct {
	Name        string `json:"name"`
	Severity    string `json:"severity" jsonschema:"One of low, moderate, high, critical"`
	Duration    string `json:"duration"`
	Description string `json:"description"`
}

type SymptomAssessment struct {
	Symptoms            []Symptom `json:"symptoms"`
	PotentialCauses     []string  `json:"potential_causes"`
	RiskFactors         []string  `json:"risk_factors"`
	AdditionalQuestions []string  `json:"additional_questions"`
}

type DrugInteraction struct {
	Severity       string `json:"severity" jsonschema:"One of low, moderate, high, critical"`
	Description    string `json:"description"`
	Recommendation string `json:"recommendation"`
}

type TreatmentPlan struct {
	PrimaryRecommendations []string `json:"primary_recommendations"`
	LifestyleModifications []string `json:"lifestyle_modifications"`
	FollowUpTimeline       string   `json:"follow_up_timeline"`
	WarningSigns           []string `json:"warning_signs"`
	EmergencyConditions    []string `json:"emergency_conditions"`
}

// Medical builds the triage agent. A detected emergency overrides the graph
// and, from the first triage, reuses the payload so EMERGENCY answers at once.
func Medical(deps Deps) (*registry.Registry, error) {
	deps = deps.withDefaults()
	descriptors := map[string]*schema.Descriptor{}
	for name, build := range map[string]func(string) (*schema.Descriptor, error){
		"EmergencyAssessment": schema.FromType[EmergencyAssessment],
		"PatientInfo":         schema.FromType[PatientInfo],
		"SymptomAssessment":   schema.FromType[SymptomAssessment],
		"DrugInteraction":     schema.FromType[DrugInteraction],
		"TreatmentPlan":       schema.FromType[TreatmentPlan],
	} {
		d, err := build(name)
		if err != nil {
			return nil, err
		}
		descriptors[name] = d
	}

	b := dsl.New("END")
	b.Add("INITIAL_TRIAGE").
		Prompt(`You are an advanced medical triage system. First, assess if this is an immediate emergency requiring urgent care.
Look for red flags such as:
- Chest pain, difficulty breathing, severe bleeding
- Stroke symptoms (FAST: Face drooping, Arm weakness, Speech difficulty, Time to call emergency)
- Severe allergic reactions
- Loss of consciousness
- Severe head injuries

Based on the user's initial complaint, determine if immediate emergency response is needed.`).
		Schema(descriptors["EmergencyAssessment"]).
		Edge("EMERGENCY", "If immediate medical attention is required").
		Edge("GATHER_PATIENT_INFO", "If situation is not immediately life-threatening").
		Handle(triage)
	b.Add("EMERGENCY").
		Prompt(`EMERGENCY PROTOCOL ACTIVATED
Provide clear, urgent instructions while emergency services are contacted.
Review the situation and provide immediate first-aid guidance if appropriate.
{{with .sys.forwarded}}Reason for escalation: {{.}}{{end}}`).
		Edge("END", "After emergency instructions are provided").
		Handle(emergency)
	b.Add("GATHER_PATIENT_INFO").
		Prompt(`Parse the user's information into structured patient data.
Prompt for any missing critical information.
Look for any red flags in the patient's history or medications.`).
		Schema(descriptors["PatientInfo"]).
		Edge("SYMPTOM_ASSESSMENT", "When patient info is complete").
		Edge("EMERGENCY", "If any red flags are detected in patient history").
		Handle(gatherPatientInfo)
	b.Add("SYMPTOM_ASSESSMENT").
		Prompt(`Analyze the reported symptoms considering:
- Patient's age, gender, and medical history
- Symptom severity and duration
- Potential interactions with existing conditions
- Risk factors and warning signs

Generate a structured assessment and identify any patterns or concerning combinations.`).
		Schema(descriptors["SymptomAssessment"]).
		Edge("DRUG_INTERACTION_CHECK", "If symptoms are well understood and non-emergency").
		Edge("EMERGENCY", "If symptoms suggest a serious condition").
		Handle(assessSymptoms)
	b.Add("DRUG_INTERACTION_CHECK").
		Prompt(`Analyze the patient's current medications for potential interactions.
Consider both existing conditions and reported symptoms.
Flag any concerning combinations or contraindications.`).
		Schema(descriptors["DrugInteraction"]).
		Edge("GENERATE_PLAN", "If no severe interactions are found").
		Edge("EMERGENCY", "If dangerous drug interactions are detected").
		Handle(checkDrugInteractions)
	b.Add("GENERATE_PLAN").
		Prompt(`Based on the complete assessment, generate a comprehensive care plan.
Consider:
- Patient's specific circumstances and limitations
- Interaction with existing conditions and medications
- Clear follow-up timeline and monitoring plans
- Specific warning signs to watch for`).
		Schema(descriptors["TreatmentPlan"]).
		Edge("END", "After plan is generated and explained").
		Edge("EMERGENCY", "If complications arise during plan generation").
		Handle(generatePlan(deps.Now))
	b.Add("END").
		Prompt("Provide final instructions and documentation.").
		Handle(func(context.Context, domain.TurnScope, schema.Payload, bool) (domain.Outcome, error) {
			return domain.Reply("Your assessment is complete. Please follow the provided care plan " +
				"and don't hesitate to seek emergency care if warning signs develop. " +
				"A record of this assessment has been saved for future reference."), nil
		})
	return b.Build()
}

func triage(_ context.Context, turn domain.TurnScope, p schema.Payload, _ bool) (domain.Outcome, error) {
	var a EmergencyAssessment
	if err := p.Decode(&a); err != nil {
		return nil, err
	}
	if err := turn.SetContext(EmergencyAssessmentKey, map[string]any(p.Fields())); err != nil {
		return nil, err
	}
	if a.IsEmergency {
		return &domain.ImmediateOverride{
			Target:       "EMERGENCY",
			Input:        "Emergency situation detected",
			ReusePayload: true,
		}, nil
	}
	return domain.Reply("Assessment: " + a.Reasoning + "\n" +
		"Recommended Action: " + a.RecommendedAction + "\n" +
		"Since this isn't an immediate emergency, I'll need to gather some information about you. " +
		"Please provide your name, age, gender, any existing medical conditions, " +
		"current medications, and allergies."), nil
}

func emergency(_ context.Context, _ domain.TurnScope, p schema.Payload, _ bool) (domain.Outcome, error) {
	// A cascaded triage payload has no content field.
	guidance := p.Content()
	if guidance == "" {
		guidance = p.String("recommended_action")
	}
	return domain.Reply("EMERGENCY SITUATION DETECTED\n" + guidance + "\n\n" +
		"Please call emergency services immediately (911 in the US).\n" +
		"Stay on the line while help is dispatched."), nil
}

func gatherPatientInfo(_ context.Context, turn domain.TurnScope, p schema.Payload, _ bool) (domain.Outcome, error) {
	if err := turn.SetContext(PatientInfoKey, map[string]any(p.Fields())); err != nil {
		return nil, err
	}
	return domain.Reply("Thank you. I've recorded your information. " +
		"Now, please describe the symptoms you're experiencing, " +
		"including when they started and how severe they are."), nil
}

const criticalNotice = "This needs urgent attention. Reply with anything to get emergency guidance now."

func assessSymptoms(_ context.Context, turn domain.TurnScope, p schema.Payload, _ bool) (domain.Outcome, error) {
	var a SymptomAssessment
	if err := p.Decode(&a); err != nil {
		return nil, err
	}
	if err := turn.SetContext(SymptomAssessmentKey, map[string]any(p.Fields())); err != nil {
		return nil, err
	}
	if slices.ContainsFunc(a.Symptoms, func(s Symptom) bool { return strings.EqualFold(s.Severity, SeverityCritical) }) {
		return &domain.ImmediateOverride{
			Target:   "EMERGENCY",
			Input:    "Critical symptoms detected",
			Response: criticalNotice,
		}, nil
	}

	var sb strings.Builder
	sb.WriteString("Symptom Assessment:\n")
	for _, s := range a.Symptoms {
		fmt.Fprintf(&sb, "- %s (%s): %s\n", s.Name, s.Severity, s.Description)
	}
	sb.WriteString("\nPotential Causes:\n")
	bullets(&sb, a.PotentialCauses)
	if len(a.AdditionalQuestions) > 0 {
		sb.WriteString("\nI need some additional information:\n")
		bullets(&sb, a.AdditionalQuestions)
	}
	return domain.Reply(sb.String()), nil
}

func checkDrugInteractions(_ context.Context, turn domain.TurnScope, p schema.Payload, _ bool) (domain.Outcome, error) {
	var d DrugInteraction
	if err := p.Decode(&d); err != nil {
		return nil, err
	}
	if err := turn.SetContext(DrugInteractionsKey, map[string]any(p.Fields())); err != nil {
		return nil, err
	}
	if strings.EqualFold(d.Severity, SeverityCritical) {
		return &domain.ImmediateOverride{
			Target:   "EMERGENCY",
			Input:    "Critical drug interaction detected: " + d.Description,
			Response: criticalNotice,
		}, nil
	}
	return domain.Reply(fmt.Sprintf(
		"Medication Analysis:\nSeverity: %s\nDetails: %s\nRecommendation: %s\n\nNow, let's generate your treatment plan.",
		d.Severity, d.Description, d.Recommendation,
	)), nil
}

func generatePlan(now func() time.Time) domain.Handler {
	return func(_ context.Context, turn domain.TurnScope, p schema.Payload, _ bool) (domain.Outcome, error) {
		var plan TreatmentPlan
		if err := p.Decode(&plan); err != nil {
			return nil, err
		}
		fields := map[string]any(p.Fields())
		if err := turn.SetContext(TreatmentPlanKey, fields); err != nil {
			return nil, err
		}

		audit := map[string]any{
			"timestamp":      now().UTC().Format(time.RFC3339),
			TreatmentPlanKey: fields,
		}
		for _, k := range []string{PatientInfoKey, EmergencyAssessmentKey, DrugInteractionsKey, SymptomAssessmentKey} {
			v, _ := turn.GetContext(k)
			audit[k] = v
		}
		if err := turn.SetContext(AuditLogKey, audit); err != nil {
			return nil, err
		}

		var sb strings.Builder
		sb.WriteString("Based on our assessment, here's your care plan:\n\nRecommendations:\n")
		bullets(&sb, plan.PrimaryRecommendations)
		sb.WriteString("\nLifestyle Modifications:\n")
		bullets(&sb, plan.LifestyleModifications)
		fmt.Fprintf(&sb, "\nFollow-up Timeline: %s\n", plan.FollowUpTimeline)
		sb.WriteString("\nWarning Signs (Seek immediate care if you experience):\n")
		bullets(&sb, plan.WarningSigns)
		sb.WriteString("\nEmergency Conditions:\n")
		bullets(&sb, plan.EmergencyConditions)
		return domain.Reply(sb.String()), nil
	}
}

func bullets(sb *strings.Builder, items []string) {
	for _, it := range items {
		fmt.Fprintf(sb, "- %s\n", it)
	}
}

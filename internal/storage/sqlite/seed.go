package sqlite

import "github.com/bayeshealth/diagnosis-api/internal/storage"

// seedDiseases is the built-in catalog loaded into an empty database.
// Prevalence, sensitivity and false positive rates describe the standard
// screening test for each condition.
var seedDiseases = []storage.Disease{
	{
		Name: "influenza", Prevalence: 0.10, Sensitivity: 0.90, FalsePositive: 0.10,
		Symptoms: []string{"fever", "chills", "muscle_aches", "cough", "congestion", "runny_nose", "headache", "fatigue"},
	},
	{
		Name: "covid19", Prevalence: 0.05, Sensitivity: 0.95, FalsePositive: 0.02,
		Symptoms: []string{"fever", "dry_cough", "fatigue", "loss_taste_smell", "sore_throat", "headache", "body_aches", "difficulty_breathing"},
	},
	{
		Name: "diabetes", Prevalence: 0.08, Sensitivity: 0.85, FalsePositive: 0.05,
		Symptoms: []string{"increased_thirst", "frequent_urination", "extreme_hunger", "unexplained_weight_loss", "fatigue", "blurred_vision"},
	},
	{
		Name: "hypertension", Prevalence: 0.30, Sensitivity: 0.80, FalsePositive: 0.10,
		Symptoms: []string{"severe_headache", "chest_pain", "difficulty_breathing", "irregular_heartbeat", "dizziness", "fatigue"},
	},
	{
		Name: "malaria", Prevalence: 0.02, Sensitivity: 0.92, FalsePositive: 0.03,
		Symptoms: []string{"fever", "chills", "headache", "nausea", "vomiting", "muscle_pain", "sweating", "fatigue"},
	},
	{
		Name: "tuberculosis", Prevalence: 0.01, Sensitivity: 0.88, FalsePositive: 0.02,
		Symptoms: []string{"persistent_cough", "coughing_blood", "chest_pain", "fever", "night_sweats", "weight_loss"},
	},
	{
		Name: "pneumonia", Prevalence: 0.04, Sensitivity: 0.87, FalsePositive: 0.06,
		Symptoms: []string{"cough_phlegm", "fever", "chills", "difficulty_breathing", "chest_pain", "fatigue"},
	},
	{
		Name: "hepatitis_b", Prevalence: 0.015, Sensitivity: 0.98, FalsePositive: 0.01,
		Symptoms: []string{"yellow_skin_eyes", "dark_urine", "fatigue", "nausea", "abdominal_pain"},
	},
}

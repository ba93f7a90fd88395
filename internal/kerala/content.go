// Package kerala holds the static Kerala market information served under
// /api/kerala.
package kerala

import (
	"sort"
	"strings"
)

type Curriculum struct {
	Name      string   `json:"name"`
	Subjects  []string `json:"subjects"`
	Classes   []string `json:"classes"`
	Languages []string `json:"languages"`
}

var allClasses = []string{"1", "2", "3", "4", "5", "6", "7", "8", "9", "10", "11", "12"}

var curricula = map[string]Curriculum{
	"scert": {
		Name: "SCERT Kerala",
		Subjects: []string{
			"Mathematics", "Physics", "Chemistry", "Biology",
			"Social Science", "Malayalam", "English", "Hindi",
			"Arabic", "Sanskrit", "Computer Science",
		},
		Classes:   allClasses,
		Languages: []string{"Malayalam", "English", "Hindi", "Arabic", "Sanskrit"},
	},
	"cbse": {
		Name: "CBSE",
		Subjects: []string{
			"Mathematics", "Physics", "Chemistry", "Biology",
			"Social Science", "English", "Hindi", "Computer Science",
			"Economics", "Business Studies", "Accountancy",
		},
		Classes:   allClasses,
		Languages: []string{"English", "Hindi", "Sanskrit"},
	},
	"icse": {
		Name: "ICSE",
		Subjects: []string{
			"Mathematics", "Physics", "Chemistry", "Biology",
			"History", "Geography", "English", "Hindi",
			"Computer Science", "Economics", "Commerce",
		},
		Classes:   allClasses,
		Languages: []string{"English", "Hindi", "Sanskrit"},
	},
}

var malayalamSupport = map[string]map[string]string{
	"greetings": {
		"hello":        "നമസ്കാരം",
		"good_morning": "സുപ്രഭാതം",
		"good_evening": "സുസന്ധ്യ",
		"thank_you":    "നന്ദി",
		"welcome":      "സ്വാഗതം",
	},
	"subjects": {
		"mathematics": "ഗണിതം",
		"physics":     "ഭൗതികശാസ്ത്രം",
		"chemistry":   "രസതന്ത്രം",
		"biology":     "ജീവശാസ്ത്രം",
		"english":     "ഇംഗ്ലീഷ്",
		"malayalam":   "മലയാളം",
		"hindi":       "ഹിന്ദി",
	},
	"common_phrases": {
		"how_are_you":        "എങ്ങനെയുണ്ട്?",
		"what_is_your_name":  "നിങ്ങളുടെ പേരെന്താണ്?",
		"where_are_you_from": "നിങ്ങൾ എവിടെനിന്നാണ്?",
		"nice_to_meet_you":   "നിങ്ങളെ കാണാനായി സന്തോഷം",
	},
}

// Pricing is in INR.
type Pricing struct {
	StudentMonthly    int `json:"student_monthly"`
	StudentYearly     int `json:"student_yearly"`
	InstructorMonthly int `json:"instructor_monthly"`
	InstructorYearly  int `json:"instructor_yearly"`
	SchoolLicense     int `json:"school_license"`
	UniversityLicense int `json:"university_license"`
}

var pricing = Pricing{
	StudentMonthly:    299,
	StudentYearly:     2999,
	InstructorMonthly: 599,
	InstructorYearly:  5999,
	SchoolLicense:     9999,
	UniversityLicense: 19999,
}

var ksumFeatures = map[string][]string{
	"startup_support": {
		"Incubation support",
		"Mentorship programs",
		"Funding opportunities",
		"Networking events",
		"Technology transfer",
	},
	"government_schemes": {
		"Kerala Startup Mission",
		"Digital Kerala",
		"IT Mission Kerala",
		"Kerala Development and Innovation Strategic Council",
	},
	"local_integration": {
		"Kerala State IT Mission",
		"Kerala State Council for Science, Technology and Environment",
		"Kerala State Higher Education Council",
	},
}

func Features() map[string]any {
	return map[string]any{
		"curriculum_support": curricula,
		"malayalam_support":  malayalamSupport,
		"pricing":            pricing,
		"ksum_alignment":     ksumFeatures,
		"local_benefits": map[string]string{
			"cost_effective":     "Pricing optimized for Kerala market",
			"language_support":   "Full Malayalam, English, Hindi support",
			"curriculum_aligned": "SCERT, CBSE, ICSE curriculum support",
			"local_integration":  "KSUM and government scheme alignment",
		},
	}
}

// CurriculumTypes lists the known curriculum keys in sorted order.
func CurriculumTypes() []string {
	keys := make([]string, 0, len(curricula))
	for k := range curricula {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// CurriculumInfo reports false for an unknown curriculum type.
func CurriculumInfo(kind string) (map[string]any, bool) {
	c, ok := curricula[strings.ToLower(kind)]
	if !ok {
		return nil, false
	}
	return map[string]any{
		"curriculum": c,
		"supported_features": []string{
			"Multi-language support",
			"Local content integration",
			"Kerala-specific examples",
			"Cultural context awareness",
		},
	}, true
}

func Languages() map[string]any {
	return map[string]any{
		"primary_languages": []string{"Malayalam", "English", "Hindi"},
		"language_features": map[string]map[string]string{
			"malayalam": {
				"script":        "Malayalam script",
				"romanization":  "Supported",
				"voice_support": "Coming soon",
				"translation":   "Bidirectional with English",
			},
			"english": {
				"script":        "Latin script",
				"voice_support": "Available",
				"translation":   "Primary language",
			},
			"hindi": {
				"script":        "Devanagari script",
				"romanization":  "Supported",
				"voice_support": "Coming soon",
				"translation":   "Bidirectional with English",
			},
		},
		"translation_capabilities": []string{
			"Real-time translation",
			"Context-aware translation",
			"Educational terminology support",
			"Cultural adaptation",
		},
	}
}

func PricingInfo() map[string]any {
	return map[string]any{
		"pricing":  pricing,
		"currency": "INR",
		"payment_methods": []string{
			"UPI",
			"Net Banking",
			"Credit/Debit Cards",
			"Wallets (Paytm, PhonePe, Google Pay)",
			"EMI options",
		},
		"discounts": map[string]string{
			"student_discount": "20% off for verified students",
			"bulk_discount":    "30% off for schools/colleges",
			"ksum_discount":    "15% off for KSUM registered startups",
		},
	}
}

func KSUM() map[string]any {
	return map[string]any{
		"ksum_features": ksumFeatures,
		"startup_benefits": []string{
			"Incubation support through KSUM",
			"Mentorship from industry experts",
			"Access to government funding",
			"Networking with other edtech startups",
			"Technology transfer opportunities",
		},
		"government_support": []string{
			"Kerala State IT Mission support",
			"Digital Kerala initiative alignment",
			"Higher Education Council integration",
			"Science and Technology Council support",
		},
	}
}

func LocalContent() map[string]any {
	return map[string]any{
		"kerala_content": map[string][]string{
			"local_examples": {
				"Kerala geography and history",
				"Local scientific institutions",
				"Kerala-specific case studies",
				"Cultural context integration",
			},
			"institutions": {
				"IISER Thiruvananthapuram",
				"CUSAT",
				"Kerala University",
				"Cochin University of Science and Technology",
			},
			"local_scientists": {
				"Dr. C.V. Raman (Nobel Prize in Physics)",
				"Dr. K.S. Krishnan",
				"Dr. E.C.G. Sudarshan",
			},
		},
		"content_adaptation": map[string]string{
			"cultural_sensitivity": "Content adapted for Kerala context",
			"local_relevance":      "Examples from Kerala's educational landscape",
			"language_nuances":     "Malayalam language subtleties",
			"regional_focus":       "South Indian educational context",
		},
	}
}

func MarketAnalysis() map[string]any {
	return map[string]any{
		"market_size": map[string]string{
			"total_students":   "4.5 million",
			"higher_education": "500,000 students",
			"schools":          "15,000+ schools",
			"colleges":         "1,000+ colleges",
		},
		"digital_adoption": map[string]string{
			"internet_penetration":     "85%",
			"smartphone_usage":         "90%",
			"digital_literacy":         "78%",
			"online_learning_adoption": "65%",
		},
		"opportunities": []string{
			"High digital adoption rate",
			"Strong government support for edtech",
			"Growing middle class with education focus",
			"Multi-language market potential",
			"Government school digitization initiatives",
		},
		"challenges": []string{
			"Rural-urban digital divide",
			"Language diversity management",
			"Cost sensitivity",
			"Infrastructure limitations in rural areas",
		},
	}
}

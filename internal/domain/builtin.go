package domain

import "github.com/dshills/taxgen/internal/schema"

func builtins() []schema.Template {
	return []schema.Template{
		{
			Name:        "business_meal_deduction",
			Description: "Business meal expenses and their deductibility under IRC Section 274",
			ExampleQuestions: []string{
				"How much of the meal expense is deductible?",
				"What percentage of business meals can be deducted?",
				"Is this meal expense qualifying for deduction?",
			},
			ReasoningPattern: []string{
				"Identify the expense amount and business purpose",
				"Verify the meal meets 'ordinary and necessary' criteria",
				"Apply IRC Section 274 deduction percentage (50%)",
				"Calculate the deductible amount",
			},
			RequiredFacts: []string{"expense_amount", "business_purpose", "participants_present", "meal_type_and_location"},
			ApplicableRules: []string{
				"IRC Section 274 - Entertainment expenses",
				"50% limitation on business meals",
				"Ordinary and necessary business expense test",
			},
			AnswerPattern: "50% of the meal cost (subject to IRC Section 274)",
		},
		{
			Name:        "home_office_deduction",
			Description: "Home office expenses for business use of home under IRC Section 280A",
			ExampleQuestions: []string{
				"What percentage of home expenses can be deducted?",
				"Is the home office deduction allowed?",
				"How much can be claimed for home office expenses?",
			},
			ReasoningPattern: []string{
				"Verify exclusive business use of space",
				"Calculate business percentage of home",
				"Identify qualifying home expenses",
				"Apply business percentage to expenses",
			},
			RequiredFacts: []string{"office_square_footage", "total_home_square_footage", "exclusive_business_use", "qualifying_expenses"},
			ApplicableRules: []string{
				"IRC Section 280A - Business use of home",
				"Exclusive use test",
				"Regular use test",
			},
			AnswerPattern: "Business use percentage of total home area",
		},
		{
			Name:        "travel_expense_deduction",
			Description: "Business travel expenses and their deductibility under IRC Section 162",
			ExampleQuestions: []string{
				"How much travel expense can be deducted?",
				"Which travel expenses are deductible?",
				"Is this trip primarily for business?",
			},
			ReasoningPattern: []string{
				"Determine if travel is away from tax home",
				"Verify business purpose of travel",
				"Identify ordinary and necessary expenses",
				"Calculate deductible amounts",
			},
			RequiredFacts: []string{"travel_destination", "business_purpose", "duration_of_trip", "expense_breakdown"},
			ApplicableRules: []string{
				"IRC Section 162 - Business expenses",
				"Away from home test",
				"Temporary vs. indefinite assignment rules",
			},
			AnswerPattern: "Ordinary and necessary business travel costs",
		},
		{
			Name:        "charitable_donation_deduction",
			Description: "Charitable contribution deductions under IRC Section 170",
			ExampleQuestions: []string{
				"How much charitable deduction is allowed?",
				"Is this organization qualified for deductions?",
				"What are the donation limits?",
			},
			ReasoningPattern: []string{
				"Verify qualified charitable organization",
				"Determine contribution amount and type",
				"Apply AGI limitation percentages",
				"Calculate allowable deduction",
			},
			RequiredFacts: []string{"organization_status", "donation_amount", "donation_type", "taxpayer_agi"},
			ApplicableRules: []string{
				"IRC Section 170 - Charitable contributions",
				"60% AGI limitation for cash donations",
				"30% AGI limitation for capital gain property",
			},
			AnswerPattern: "Up to AGI limits under IRC Section 170",
		},
		{
			Name:        "vehicle_expense_deduction",
			Description: "Business vehicle expense deductions under IRC Section 162",
			ExampleQuestions: []string{
				"What vehicle expenses are deductible?",
				"Should I use standard mileage or actual expense method?",
			},
			ReasoningPattern: []string{
				"Determine business vs. personal use percentage",
				"Choose between standard mileage and actual expense method",
				"Calculate allowable business deduction",
				"Apply record-keeping requirements",
			},
			RequiredFacts: []string{"total_miles_driven", "business_miles", "vehicle_expenses", "method_preference"},
			ApplicableRules: []string{
				"IRC Section 162 - Business expenses",
				"Standard mileage rate (IRS Notice)",
				"Actual expense method rules",
			},
			AnswerPattern: "Business use percentage of total vehicle costs",
		},
	}
}

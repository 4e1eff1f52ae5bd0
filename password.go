package auth

import "unicode"

// PasswordStrength scores a password 0-5 and lists what is missing.
// Feedback is cleared once the password is considered strong enough.
type PasswordStrength struct {
	Score    int
	Feedback []string
}

func CheckPasswordStrength(password string) PasswordStrength {
	if password == "" {
		return PasswordStrength{Score: 0, Feedback: []string{"Enter a password"}}
	}

	var hasLower, hasUpper, hasDigit, hasSymbol bool
	for _, r := range password {
		switch {
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		default:
			hasSymbol = true
		}
	}

	score := 0
	var feedback []string

	if len(password) >= 12 {
		score++
	} else {
		feedback = append(feedback, "Use at least 12 characters")
	}

	if hasLower {
		score++
	} else {
		feedback = append(feedback, "Add lowercase letters")
	}

	if hasUpper {
		score++
	} else {
		feedback = append(feedback, "Add uppercase letters")
	}

	if hasDigit {
		score++
	} else {
		feedback = append(feedback, "Add numbers")
	}

	if hasSymbol {
		score++
	} else {
		feedback = append(feedback, "Add special characters")
	}

	if score >= 4 {
		feedback = nil
	}

	return PasswordStrength{Score: score, Feedback: feedback}
}

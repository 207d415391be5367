package core

// NewUser is the profile submitted when a wallet signs up.
type NewUser struct {
	FullName string `json:"fullName"`
	Email    string `json:"email,omitempty"`
	Username string `json:"username,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
	NewUser  bool   `json:"newUser"`
}

// User is the q/acc user as returned by the backend.
type User struct {
	ID                            string   `json:"id"`
	FullName                      string   `json:"fullName"`
	Email                         string   `json:"email"`
	Username                      string   `json:"username"`
	Avatar                        string   `json:"avatar"`
	IsSignedIn                    bool     `json:"isSignedIn"`
	PrivadoVerified               bool     `json:"privadoVerified"`
	AcceptedToS                   bool     `json:"acceptedToS"`
	WalletAddress                 string   `json:"walletAddress,omitempty"`
	URL                           string   `json:"url,omitempty"`
	Location                      string   `json:"location,omitempty"`
	LikedProjectsCount            *int     `json:"likedProjectsCount,omitempty"`
	DonationsCount                *int     `json:"donationsCount,omitempty"`
	TotalDonated                  *float64 `json:"totalDonated,omitempty"`
	ProjectsCount                 *int     `json:"projectsCount,omitempty"`
	PassportScore                 *float64 `json:"passportScore,omitempty"`
	PassportStamps                *int     `json:"passportStamps,omitempty"`
	AnalysisScore                 *float64 `json:"analysisScore,omitempty"`
	HasEnoughGitcoinPassportScore *bool    `json:"hasEnoughGitcoinPassportScore,omitempty"`
	HasEnoughGitcoinAnalysisScore *bool    `json:"hasEnoughGitcoinAnalysisScore,omitempty"`
	QaccPoints                    float64  `json:"qaccPoints"`
	QaccPointsMultiplier          float64  `json:"qaccPointsMultiplier"`
	ProjectsFundedCount           int      `json:"projectsFundedCount"`
	Rank                          int      `json:"rank"`
	SkipVerification              *bool    `json:"skipVerification,omitempty"`
}

// GivethUser is the subset of a Giveth profile imported on first login.
type GivethUser struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Avatar    string `json:"avatar"`
}

type UserFullInfo struct {
	GivethUser
	WalletAddress      string  `json:"walletAddress"`
	URL                string  `json:"url"`
	Location           string  `json:"location"`
	LikedProjectsCount int     `json:"likedProjectsCount"`
	DonationsCount     int     `json:"donationsCount"`
	ProjectsCount      int     `json:"projectsCount"`
	PassportScore      float64 `json:"passportScore"`
	PassportStamps     int     `json:"passportStamps"`
	AnalysisScore      float64 `json:"analysisScore"`
}

// UnusedCap is the remaining allowance for one verification method.
type UnusedCap struct {
	UnusedCap float64 `json:"unusedCap"`
}

// ProjectUserDonationCapKyc is how much a user may still donate to a project
// depending on the identity check they passed.
type ProjectUserDonationCapKyc struct {
	QAccCap         float64   `json:"qAccCap"`
	GitcoinPassport UnusedCap `json:"gitcoinPassport"`
	ZkID            UnusedCap `json:"zkId"`
}

// Scores returns the Gitcoin analysis and passport scores, zero when unknown.
func (u User) Scores() (analysis, passport float64) {
	if u.AnalysisScore != nil {
		analysis = *u.AnalysisScore
	}
	if u.PassportScore != nil {
		passport = *u.PassportScore
	}
	return analysis, passport
}

package validation

// UserRequest is the body of POST /users.
type UserRequest struct {
	Email          string           `json:"email" validate:"required,email"`
	Availabilities map[string][]int `json:"availabilities" validate:"required,dive,keys,weekday,endkeys,dive,min=0,max=23"`
	Preferences    string           `json:"preferences" validate:"omitempty,preference"`
}

// UpdateUserRequest is the body of PUT /users/:email; the path names the user.
type UpdateUserRequest struct {
	Availabilities map[string][]int `json:"availabilities" validate:"required,dive,keys,weekday,endkeys,dive,min=0,max=23"`
	Preferences    string           `json:"preferences" validate:"omitempty,preference"`
}

// TaskRequest is the body of POST /tasks.
type TaskRequest struct {
	UserID1    string `json:"userId1" validate:"required"`
	UserID2    string `json:"userId2" validate:"required"`
	Preference string `json:"preference,omitempty" validate:"omitempty,preference"`
}

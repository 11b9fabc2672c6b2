package auth

import "go.mongodb.org/mongo-driver/bson/primitive"

type User struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	IDNumber     string             `bson:"id_number"`
	Name         string             `bson:"name"`
	Email        string             `bson:"email"`
	PasswordHash string             `bson:"password_hash"`
	Role         string             `bson:"role"`       // admin, student or employee
	Department   string             `bson:"department"` // course for students, office for employees
}

type RegisterRequest struct {
	IDNumber   string `json:"id_number"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	Role       string `json:"role"`
	Department string `json:"department"`
}

type Credential struct {
	Identifier string `json:"identifier"` // email or student/employee number
	Password   string `json:"password"`
}

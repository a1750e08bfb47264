package builtin

import (
	"context"

	"github.com/codewandler/rtassist-go/tool"
)

// NewUser describes a user to create.
type NewUser struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role,omitempty"`
}

// User is a created user record.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role,omitempty"`
}

// UserCreator persists new users.
type UserCreator interface {
	Create(ctx context.Context, user NewUser) (*User, error)
}

// UserCreateCapability exposes create_user.
func UserCreateCapability(creator UserCreator) tool.Capability {
	return tool.Capability{
		Tool: tool.Func(
			"create_user",
			"Create a new user account.",
			tool.Properties{
				"name":  {Type: "string", Description: "Full name"},
				"email": {Type: "string", Description: "Email address"},
				"role":  {Type: "string", Description: "Optional role", Enum: []any{"member", "admin"}},
			},
			"name", "email",
		),
		Executor: tool.ExecutorFunc(func(ctx context.Context, args map[string]any) (map[string]any, error) {
			name, err := stringArg(args, "name")
			if err != nil {
				return nil, err
			}
			email, err := stringArg(args, "email")
			if err != nil {
				return nil, err
			}

			user, err := creator.Create(ctx, NewUser{
				Name:  name,
				Email: email,
				Role:  optionalStringArg(args, "role"),
			})
			if err != nil {
				return nil, err
			}

			return map[string]any{
				"user": user,
			}, nil
		}),
	}
}

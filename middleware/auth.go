package middleware

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"veriform/utils"
)

type contextKey string

const AdminContextKey contextKey = "admin"

func JWTAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header required", http.StatusUnauthorized)
			return
		}

		bearerToken := strings.Split(authHeader, " ")
		if len(bearerToken) != 2 || bearerToken[0] != "Bearer" {
			http.Error(w, "Invalid authorization header format", http.StatusUnauthorized)
			return
		}

		claims, err := utils.ValidateToken(bearerToken[1])
		if err != nil {
			log.Printf("Token validation failed for %s: %v", r.URL.Path, err)
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), AdminContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func AdminAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := r.Context().Value(AdminContextKey).(*utils.Claims)
		if !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{
				"error": "Unauthorized - No reviewer context",
			})
			return
		}

		log.Printf("Reviewer %d (%s) accessing %s", claims.AdminID, claims.Email, r.URL.Path)
		next.ServeHTTP(w, r)
	})
}

func GetAdminFromContext(r *http.Request) *utils.Claims {
	if claims, ok := r.Context().Value(AdminContextKey).(*utils.Claims); ok {
		return claims
	}
	return nil
}

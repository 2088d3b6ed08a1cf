package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const welcomeMessage = "Welcome to CRUD operations with Go/Gin and PostgreSQL"

func Home(ctx *gin.Context) {
	RespondSuccess(ctx, http.StatusOK, welcomeMessage)
}

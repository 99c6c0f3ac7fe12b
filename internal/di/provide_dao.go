package di

import (
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/savaki/front-deployer/internal/dao/frontdao"
	"github.com/savaki/front-deployer/internal/services"
)

// ProvideFrontDAO uses the configured table, falling back to the
// environment's default table name.
func ProvideFrontDAO(env string, client *dynamodb.Client, config *services.Config) *frontdao.DAO {
	tableName := config.TableName
	if tableName == "" {
		tableName = frontdao.TableName(env)
	}
	return frontdao.New(client, tableName)
}

package dynamodb

// Config holds DynamoDB connection and table settings.
type Config struct {
	TableName   string `yaml:"tableName"`
	Region      string `yaml:"region,omitempty"`
	Endpoint    string `yaml:"endpoint,omitempty"` // DynamoDB Local
	CreateTable bool   `yaml:"createTable,omitempty"`
}

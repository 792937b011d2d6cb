package helpers

import (
	"fmt"
	"os"
	"path/filepath"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
)

func OpenDataFile(dataDirectory, fileName string) (*os.File, error) {
	// Open a specific data file
	filePath := filepath.Join(dataDirectory, fileName)
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("error opening data file %s: %w", fileName, err)
	}
	return file, nil
}

// DeleteDataFile deletes a file
func DeleteDataFile(filePath string) error {
	return os.Remove(filePath)
}

// FileExists checks if a file exists and is not a directory
func FileExists(filename string, logger *zap.SugaredLogger) bool {
	info, err := os.Stat(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return false // File does not exist
		}
		if logger != nil {
			logger.Infof("Error checking file %s for existence: %s\n", filename, err)
		}
		return false // Some other error occurred
	}

	return !info.IsDir() // Return true if it's not a directory
}

// FileSize returns the size of a file in bytes, or an error if it does
// not exist.
func FileSize(filename string) (int64, error) {
	info, err := os.Stat(filename)
	if err != nil {
		return 0, fmt.Errorf("error checking size of %s: %w", filename, err)
	}
	return info.Size(), nil
}

// AtomicWriteFile writes data to a temporary file in the target directory
// and renames it into place, so a failed write never leaves a partial file
// behind. The temporary name carries a UUID so concurrent writers cannot
// collide.
func AtomicWriteFile(filePath string, data []byte) error {
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating directory %s: %w", dir, err)
	}

	tmpPath := filepath.Join(dir, fmt.Sprintf(".%s.%s.tmp", filepath.Base(filePath), GenerateUUID()))
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("error writing temporary file %s: %w", tmpPath, err)
	}

	if err := os.Rename(tmpPath, filePath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("error renaming %s into place: %w", tmpPath, err)
	}
	return nil
}

// EncodeBSON encodes a record into BSON
func EncodeBSON(record interface{}) ([]byte, error) {
	bsonData, err := bson.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("error encoding BSON: %w", err)
	}
	return bsonData, nil
}

// DecodeBSON decodes BSON data back into the given record
func DecodeBSON(bsonData []byte, record interface{}) error {
	if err := bson.Unmarshal(bsonData, record); err != nil {
		return fmt.Errorf("error decoding BSON: %w", err)
	}
	return nil
}

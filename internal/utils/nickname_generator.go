package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

var positions = []string{
	"Striker", "Keeper", "Winger", "Sweeper", "Playmaker",
	"Libero", "Pivot", "Closer", "Slugger", "Rookie",
}

var clubs = []string{
	"United", "Rovers", "Athletic", "Wanderers", "Rangers",
	"Dynamo", "Sporting", "Olympic", "Racing", "City",
}

func pick(n int) (int64, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return v.Int64(), nil
}

// GenerateNickname returns a random display name like "Striker_Rovers_0421"
func GenerateNickname() (string, error) {
	p, err := pick(len(positions))
	if err != nil {
		return "", fmt.Errorf("failed to pick position: %w", err)
	}
	c, err := pick(len(clubs))
	if err != nil {
		return "", fmt.Errorf("failed to pick club: %w", err)
	}
	suffix, err := pick(10000)
	if err != nil {
		return "", fmt.Errorf("failed to pick suffix: %w", err)
	}

	return fmt.Sprintf("%s_%s_%04d", positions[p], clubs[c], suffix), nil
}

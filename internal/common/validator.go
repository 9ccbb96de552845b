package common

import (
	"errors"
	"regexp"
	"strconv"
)

var numericIDRE = regexp.MustCompile(`^[0-9]+$`)

// ValidateUserID checks that ID is a Bilibili mid: a positive decimal number.
func ValidateUserID(ID string) error {
	if err := validatePositiveID(ID); err != nil {
		return errors.New("invalid Bilibili user id, " + err.Error())
	}

	return nil
}

// ValidateSeasonID checks that ID is a Bilibili season id: a positive decimal number.
func ValidateSeasonID(ID string) error {
	if err := validatePositiveID(ID); err != nil {
		return errors.New("invalid Bilibili season id, " + err.Error())
	}

	return nil
}

// ValidateCatalogType checks the Stremio catalog type. Only series are served.
func ValidateCatalogType(t string) error {
	if t != "series" {
		return errors.New("invalid catalog type, only series is supported")
	}

	return nil
}

func validatePositiveID(ID string) error {
	if !numericIDRE.MatchString(ID) {
		return errors.New("not a number")
	}

	v, err := strconv.ParseInt(ID, 10, 64)
	if err != nil {
		return errors.New("out of range")
	}

	if v <= 0 {
		return errors.New("less than or equal to 0")
	}

	return nil
}

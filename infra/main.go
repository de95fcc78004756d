package main

import (
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"

	"github.com/GregMSThompson/moneyloop/infra/cloudrun"
	"github.com/GregMSThompson/moneyloop/infra/docker"
	"github.com/GregMSThompson/moneyloop/infra/kms"
	"github.com/GregMSThompson/moneyloop/infra/provider"
	"github.com/GregMSThompson/moneyloop/infra/secret"
)

func main() {
	pulumi.Run(func(ctx *pulumi.Context) error {
		// set default provider with the correct project
		prov, err := provider.SetupDefaultProvider(ctx)
		if err != nil {
			return err
		}

		// runtime identity for the api
		apiSA, err := cloudrun.CreateServiceAccount(ctx, prov)
		if err != nil {
			return err
		}

		// secrets are read at runtime, never written
		smService, err := secret.SetupSecretManager(ctx, prov, apiSA)
		if err != nil {
			return err
		}

		// key that encrypts stored plaid access tokens
		kmsService, err := kms.SetupKMS(ctx, prov)
		if err != nil {
			return err
		}
		keyName, err := kms.CreateKey(ctx, prov, apiSA, "moneyloop", "access-tokens")
		if err != nil {
			return err
		}

		// create docker repo
		repo, err := docker.CreateCloudrunRepo(ctx, prov)
		if err != nil {
			return err
		}

		svcURL, err := cloudrun.SetupCloudRun(ctx, prov, apiSA, keyName, repo, smService, kmsService)
		if err != nil {
			return err
		}

		ctx.Export("apiUrl", svcURL)
		ctx.Export("kmsKeyName", keyName)
		return nil
	})
}
